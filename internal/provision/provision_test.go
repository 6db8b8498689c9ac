package provision

import (
	"errors"
	"strings"
	"testing"
)

func TestQuoteLiteral(t *testing.T) {
	cases := map[string]string{
		"plain":       "'plain'",
		"with'quote":  "'with''quote'",
		"":            "''",
		"two''quotes": "'two''''quotes'",
	}
	for in, want := range cases {
		if got := quoteLiteral(in); got != want {
			t.Fatalf("quoteLiteral(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	e := &Error{Stage: "schema", Err: cause}
	if !strings.Contains(e.Error(), "bootstrap schema") {
		t.Fatalf("message should identify the stage: %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Fatalf("Unwrap should expose the cause")
	}
}
