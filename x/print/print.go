// Package print provides helper package to print objects.
package print

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/jwt"
	"github.com/ugorji/go/codec"
)

var (
	// jsonEncPPHandle is used to encode json with a human readable pretty printed out put, as well as
	// line breaks/indents, fields are serialized in a canonical order everytime
	jsonEncPPHandle codec.JsonHandle
)

func init() {
	jsonEncPPHandle.BasicHandle.EncodeOptions.Canonical = true
	jsonEncPPHandle.Indent = -1
}

// JSON prints value to out
func JSON(w io.Writer, value any) {
	var json []byte
	err := codec.NewEncoderBytes(&json, &jsonEncPPHandle).Encode(value)
	if err != nil {
		fmt.Fprintf(w, "ERROR: failed to encode: %s\n", err.Error())
		return
	}
	_, _ = w.Write(json)
	fmt.Fprint(w, "\n")
}

// Token prints token header and claims
func Token(w io.Writer, t *jwt.Token) {
	fmt.Fprintf(w, "Algorithm: %s\n", t.Header.Algorithm)
	if t.Header.Type != "" {
		fmt.Fprintf(w, "Type: %s\n", t.Header.Type)
	}
	if t.Header.KeyID != "" {
		fmt.Fprintf(w, "Key ID: %s\n", t.Header.KeyID)
	}
	if t.Claims == nil {
		return
	}

	for _, k := range []string{"iat", "nbf", "exp"} {
		if tm := t.Claims.GetTime(k); tm != nil {
			fmt.Fprintf(w, "%s: %s\n", timeLabels[k], tm.UTC().Format(time.RFC3339))
		}
	}

	fmt.Fprintln(w, "Claims:")
	Claims(w, t.Claims, "  ")
}

var timeLabels = map[string]string{
	"iat": "Issued",
	"nbf": "Not Before",
	"exp": "Expires",
}

// Claims prints claims in order, one per line
func Claims(w io.Writer, claims *canonical.Object, indent string) {
	claims.Range(func(k string, v canonical.Value) bool {
		var val string
		if s, ok := v.(canonical.String); ok {
			val = string(s)
		} else {
			b, err := canonical.Serialize(v)
			if err != nil {
				val = "ERROR: " + err.Error()
			} else {
				val = string(b)
			}
		}
		fmt.Fprintf(w, "%s%s: %s\n", indent, k, strings.TrimSpace(val))
		return true
	})
}
