package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateKorean(t *testing.T) {
	ctx := initLang(t, "ko")

	got := T(ctx, "EmptyPool")
	if got != "해당 조건에 맞는 문제가 없습니다." {
		t.Errorf("T(EmptyPool) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "EmptyPool")
	if got != "No questions match the requested pool." {
		t.Errorf("T(EmptyPool) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionsImported", map[string]any{"Count": 7})
	if got != "Imported 7 questions." {
		t.Errorf("Td(QuestionsImported) = %q", got)
	}

	got = Td(ctx, "UploadRejected", map[string]any{"Record": 2, "Reason": "missing marker"})
	if got != "Could not read question 2: missing marker" {
		t.Errorf("Td(UploadRejected) = %q", got)
	}
}

func TestMissingTranslationFallsBackToID(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NoSuchMessage"); got != "NoSuchMessage" {
		t.Errorf("expected message id fallback, got %q", got)
	}
}
