package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew_FromRegistry(t *testing.T) {
	err := New(CodeSessionExpired)
	if err.Category != CategorySession || err.Message != "Session expired" {
		t.Fatalf("New = %+v", err)
	}
	if !strings.HasPrefix(err.Error(), "E101: ") {
		t.Fatalf("Error() = %q", err.Error())
	}

	unknown := New("E999")
	if unknown.Message != "Unknown error" {
		t.Fatalf("unknown code message = %q", unknown.Message)
	}
}

func TestEveryCodeHasTemplate(t *testing.T) {
	codes := []string{
		CodeSessionExpired, CodeWindowNotFound, CodeInvalidUIDLKey,
		CodeInvalidUploadKey, CodeUploadNotFound, CodeUploadTooLarge, CodeReceiverFault, CodeClientDisconnected,
		CodeProtocol, CodeEncoding, CodeInternal,
		CodeConfigInvalid, CodeConfigLoad, CodeServe,
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		if !ok {
			t.Errorf("%s: no template", code)
			continue
		}
		if tmpl.Message == "" || tmpl.DocURL == "" {
			t.Errorf("%s: incomplete template %+v", code, tmpl)
		}
	}
	all := GetAllCodes()
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("GetAllCodes not sorted: %v", all)
		}
	}
}

func TestWrapAndCodeOf(t *testing.T) {
	cause := stderrors.New("boom")
	err := New(CodeReceiverFault).Wrap(cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("errors.Is does not reach the cause")
	}
	outer := fmt.Errorf("upload: %w", err)
	if got := CodeOf(outer); got != CodeReceiverFault {
		t.Fatalf("CodeOf = %q", got)
	}
	if got := CodeOf(cause); got != "" {
		t.Fatalf("CodeOf(plain) = %q", got)
	}
	if FromError(outer, CodeInternal) != err {
		t.Fatal("FromError re-wrapped a coded error")
	}
	if FromError(nil, CodeInternal) != nil {
		t.Fatal("FromError(nil) != nil")
	}
	if got := FromError(cause, CodeInternal); got.Code != CodeInternal || got.Wrapped != cause {
		t.Fatalf("FromError(plain) = %+v", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New(CodeConfigInvalid).Wrap(stderrors.New("address required")).WithSuggestion("set server.address")
	out := err.Format()
	for _, want := range []string{"ERROR E401: Invalid configuration", "cause: address required", "Hint: set server.address", "Learn more: "} {
		if !strings.Contains(out, want) {
			t.Errorf("Format missing %q:\n%s", want, out)
		}
	}

	var buf bytes.Buffer
	fprintError(&buf, stderrors.New("plain"))
	if !strings.Contains(buf.String(), "ERROR: plain") {
		t.Fatalf("plain error output = %q", buf.String())
	}
}

func TestFormatJSON(t *testing.T) {
	err := New(CodeProtocol).Wrap(stderrors.New("bad varint"))
	var got map[string]string
	if e := json.Unmarshal([]byte(err.FormatJSON()), &got); e != nil {
		t.Fatalf("FormatJSON is not JSON: %v", e)
	}
	if got["code"] != "E301" || got["category"] != "protocol" || got["cause"] != "bad varint" {
		t.Fatalf("FormatJSON = %v", got)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Fatalf("line %q longer than width", l)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six" {
		t.Fatalf("wrapText lost words: %v", lines)
	}
}
