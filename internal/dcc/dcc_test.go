package dcc

import "testing"

func TestOfferStringRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		give Offer
		want string
	}{
		{
			name: "chat",
			give: Chat("127.0.0.1", 5000),
			want: "DCC_CHAT chat 127.0.0.1 5000",
		},
		{
			name: "send",
			give: Send("photo.png", "127.0.0.1", 5001, 2048),
			want: "DCC_SEND photo.png 127.0.0.1 5001 2048",
		},
		{
			name: "accept",
			give: Accept("photo.png", "127.0.0.1", 5001, 1024),
			want: "DCC_ACCEPT photo.png 127.0.0.1 5001 1024",
		},
		{
			name: "resume",
			give: Resume("photo.png", "127.0.0.1", 5001, 1024),
			want: "DCC_RESUME photo.png 127.0.0.1 5001 1024",
		},
		{
			name: "close",
			give: Close(),
			want: "DCC_CLOSE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.give.String()
			if got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := Parse(got)
			if err != nil {
				t.Fatalf("Parse(%q): %s", got, err)
			}
			if parsed != tt.give {
				t.Fatalf("Parse(%q) = %+v, want %+v", got, parsed, tt.give)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"DCC_CHAT 127.0.0.1 5000",
		"DCC_SEND photo.png 127.0.0.1 notaport 2048",
		"DCC_CLOSE extra",
		"DCC_UNKNOWN",
	}

	for _, text := range tests {
		if _, err := Parse(text); err == nil {
			t.Errorf("Parse(%q): expected error, got none", text)
		}
	}
}
