package ai

import "testing"

func TestFirstJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"prose before {\"a\": 1} prose after", `{"a": 1}`},
		{"```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{`{"s": "brace in string }"}`, `{"s": "brace in string }"}`},
		{`{"s": "escaped \" quote"}`, `{"s": "escaped \" quote"}`},
		{`{"first": 1} {"second": 2}`, `{"first": 1}`},
	}

	for _, tc := range cases {
		got, err := FirstJSONObject(tc.in)
		if err != nil {
			t.Fatalf("FirstJSONObject(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("FirstJSONObject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFirstJSONObject_Errors(t *testing.T) {
	for _, in := range []string{"", "no braces at all", `{"unclosed": 1`} {
		if _, err := FirstJSONObject(in); err == nil {
			t.Fatalf("FirstJSONObject(%q) unexpectedly succeeded", in)
		}
	}
}
