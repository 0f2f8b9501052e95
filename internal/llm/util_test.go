package llm

import "testing"

func TestText(t *testing.T) {
	t.Parallel()

	if got := Text(nil); got != "" {
		t.Fatalf("Text(nil) = %q", got)
	}
	if got := Text(&Response{Content: "hi"}); got != "hi" {
		t.Fatalf("Text = %q", got)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Score     int    `json:"score"`
		Reasoning string `json:"reasoning"`
	}

	cases := []struct {
		name    string
		raw     string
		want    payload
		wantErr bool
	}{
		{"plain", `{"score": 3, "reasoning": "ok"}`, payload{3, "ok"}, false},
		{"fenced", "```json\n{\"score\": 4, \"reasoning\": \"good\"}\n```", payload{4, "good"}, false},
		{"fenced no lang", "```\n{\"score\": 1}\n```", payload{Score: 1}, false},
		{"surrounded by prose", "Here you go: {\"score\": 2} hope that helps", payload{Score: 2}, false},
		{"empty", "", payload{}, true},
		{"no object", "just text", payload{}, true},
		{"broken json", `{"score": }`, payload{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got payload
			err := ParseJSON(tc.raw, &got)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseJSON(%q): expected error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJSON(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseJSON(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}
