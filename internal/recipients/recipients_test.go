package recipients

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "mixed separators with trailing blanks", content: "a@x.com\nb@y.com,c@z.com\n\n", want: "a@x.com, b@y.com, c@z.com"},
		{name: "windows line endings", content: "a@x.com\r\nb@y.com\r\n", want: "a@x.com, b@y.com"},
		{name: "surrounding whitespace", content: "  a@x.com ,\t b@y.com  ", want: "a@x.com, b@y.com"},
		{name: "duplicates kept", content: "a@x.com,a@x.com", want: "a@x.com, a@x.com"},
		{name: "only separators", content: ",\n,\n", want: ""},
		{name: "empty", content: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.content); got != tt.want {
				t.Errorf("Normalize(%q): got %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestParse_KeepsEmptyEntries(t *testing.T) {
	t.Parallel()

	got := Parse("a@x.com, , b@y.com,")
	want := []string{"a@x.com", "", "b@y.com", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse: got %q, want %q", got, want)
	}
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{addr: "a@x.com", want: true},
		{addr: "first.last+tag@sub.example.co.uk", want: true},
		{addr: "not-an-email", want: false},
		{addr: "missing@tld", want: false},
		{addr: "@x.com", want: false},
		{addr: "a@@x.com", want: false},
		{addr: "a b@x.com", want: false},
		{addr: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			if got := IsValid(tt.addr); got != tt.want {
				t.Errorf("IsValid(%q): got %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestValidate_ReportsOnlyInvalidEntries(t *testing.T) {
	t.Parallel()

	err := Validate(Parse("a@x.com, not-an-email, b@y.com"))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if !reflect.DeepEqual(verr.Invalid, []string{"not-an-email"}) {
		t.Errorf("Invalid: got %q, want [not-an-email]", verr.Invalid)
	}
	if got := verr.Error(); got != "Invalid email(s): not-an-email" {
		t.Errorf("Error(): got %q", got)
	}
}

func TestValidate_AllValid(t *testing.T) {
	t.Parallel()

	if err := Validate([]string{"a@x.com", "b@y.com"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_EmptyEntryIsInvalid(t *testing.T) {
	t.Parallel()

	var verr *ValidationError
	if err := Validate(Parse("a@x.com,")); !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Invalid) != 1 || verr.Invalid[0] != "" {
		t.Errorf("Invalid: got %q, want one empty entry", verr.Invalid)
	}
}
