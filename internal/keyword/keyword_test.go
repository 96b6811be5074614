package keyword

import "testing"

func TestSetMatch(t *testing.T) {
	t.Parallel()

	set := NewSet("news", "form", "お知らせ", "Past Exam", "")

	testCases := []struct {
		name  string
		texts []string
		want  string
		ok    bool
	}{
		{"path segment", []string{"https://www.example.ac.jp/news/2025/"}, "news", true},
		{"case insensitive", []string{"NEWS & Topics"}, "news", true},
		{"not inside a word", []string{"https://www.example.ac.jp/information/"}, "", false},
		{"newsletter is not news", []string{"/newsletter"}, "", false},
		{"japanese substring", []string{"大学からのお知らせ一覧"}, "お知らせ", true},
		{"ascii next to japanese", []string{"入試news一覧"}, "news", true},
		{"phrase", []string{"Past Exam Papers"}, "past exam", true},
		{"second text", []string{"/admission/", "お知らせ"}, "お知らせ", true},
		{"no match", []string{"/admission/guide.pdf"}, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := set.Match(tc.texts...)
			if ok != tc.ok || got != tc.want {
				t.Errorf("expected (%q, %v), got (%q, %v)", tc.want, tc.ok, got, ok)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize("  ＰＤＦ  "); got != "pdf" {
		t.Errorf("expected %q, got %q", "pdf", got)
	}
	if got := Normalize("ｱｸｾｽ"); got != "アクセス" {
		t.Errorf("expected %q, got %q", "アクセス", got)
	}
}

func TestNilSet(t *testing.T) {
	t.Parallel()

	var s *Set
	if _, ok := s.Match("anything"); ok {
		t.Error("nil set should not match")
	}
	if s.Len() != 0 {
		t.Error("nil set should be empty")
	}
	if NewSet("a", " ", "b").Len() != 2 {
		t.Error("blank keywords should be ignored")
	}
}
