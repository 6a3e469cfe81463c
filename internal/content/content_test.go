package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestStableID(t *testing.T) {
	a := StableID(SubjectScience, "Water", "Boiling point?")
	b := StableID(SubjectScience, " water ", "Boiling point?")
	c := StableID(SubjectScience, "water", "Freezing point?")

	assert.Equal(t, a, b, "topic case and padding do not change the id")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestParseSubject(t *testing.T) {
	assert.Equal(t, SubjectMath, ParseSubject(" MATH "))
	assert.Equal(t, SubjectGeneral, ParseSubject("astrology"))
	assert.Equal(t, SubjectGeneral, ParseSubject(""))
}

func TestTopicKey(t *testing.T) {
	item := Item{Subject: SubjectHistory, Topic: " Rome "}
	assert.Equal(t, "history/rome", item.TopicKey())
}

func TestNewDeck(t *testing.T) {
	items := []Item{
		{Subject: "science", Topic: "water", Front: "H2O is?", Back: "water"},
		{ID: "fixed", Subject: "math", Topic: "algebra", Front: "x+1=2", Back: "1",
			Question: &assessment.Definition{Kind: assessment.KindFillIn, Points: 2, Accepted: []string{"1"}}},
	}

	deck, err := NewDeck("mixed", items)
	require.NoError(t, err)
	assert.Equal(t, 2, deck.Len())

	all := deck.Items()
	assert.Equal(t, StableID(SubjectScience, "water", "H2O is?"), all[0].ID)
	assert.Equal(t, "fixed", all[1].ID)

	got, ok := deck.Get("fixed")
	require.True(t, ok)
	assert.True(t, got.Assessable())
	_, ok = deck.Get("missing")
	assert.False(t, ok)

	assert.Len(t, deck.Filter(SubjectMath, ""), 1)
	assert.Len(t, deck.Filter("", "WATER"), 1)
	assert.Len(t, deck.Filter("", ""), 2)
	assert.Len(t, Assessable(deck.Items()), 1)
	assert.Equal(t, []string{"math/algebra", "science/water"}, deck.TopicKeys())
}

func TestNewDeck_Rejects(t *testing.T) {
	_, err := NewDeck("dup", []Item{
		{ID: "x", Topic: "t", Front: "a"},
		{ID: "x", Topic: "t", Front: "b"},
	})
	assert.ErrorIs(t, err, ErrDuplicateItem)

	_, err = NewDeck("blank", []Item{{Topic: "t", Front: "  "}})
	assert.Error(t, err)

	_, err = NewDeck("bad question", []Item{{Topic: "t", Front: "q",
		Question: &assessment.Definition{Kind: assessment.KindChoice, Points: 1, Options: []string{"a"}, Correct: []int{3}}}})
	assert.ErrorIs(t, err, assessment.ErrInvalidQuestion)
}

func TestDeckSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decks", "deck.json")
	deck, err := NewDeck("capitals", []Item{
		{Subject: SubjectGeneral, Topic: "capitals", Front: "France?", Back: "Paris",
			Question: &assessment.Definition{Kind: assessment.KindChoice, Points: 1, Options: []string{"Paris", "Lyon"}, Correct: []int{0}}},
		{Subject: SubjectGeneral, Topic: "capitals", Front: "Italy?", Back: "Rome"},
	})
	require.NoError(t, err)

	require.NoError(t, SaveDeck(path, deck))
	loaded, err := LoadDeck(path)
	require.NoError(t, err)

	assert.Equal(t, "capitals", loaded.Name)
	if diff := cmp.Diff(deck.Items(), loaded.Items()); diff != "" {
		t.Errorf("deck mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDeck_AssignsMissingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.json")
	data := `{"name":"n","items":[{"subject":"language","topic":"verbs","front":"to go","back":"ir"}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	deck, err := LoadDeck(path)
	require.NoError(t, err)
	item := deck.Items()[0]
	assert.Equal(t, StableID(SubjectLanguage, "verbs", "to go"), item.ID)
}

func TestLoadDeck_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDeck(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = LoadDeck(bad)
	assert.Error(t, err)
}

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.xlsx")
	require.NoError(t, ExportTemplate(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.Save())
	return path
}

func TestImportWorkbook(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"science", "water", "Water boils at 100C at sea level", "", "true_false", 2, "", "true"},
		{"science", "elements", "Name the elements of glucose", "C, H, O", "fill_in", 6, "", "carbon|hydrogen|oxygen"},
		{"general", "capitals", "Capital of France?", "Paris", "choice", "", "Paris|Lyon|Nice", "0"},
		{"language", "verbs", "to eat", "comer"},
		{"general", "capitals", "Capital of France?", "Paris"},
		{"general", "", "no topic"},
		{"math", "algebra", "2x=4", "", "choice", "", "1|2", "9"},
	})

	config := DefaultImportConfig()
	config.FilePath = path
	deck, result, err := ImportWorkbook(config)
	require.NoError(t, err)

	assert.Equal(t, 7, result.TotalProcessed)
	assert.Equal(t, 4, result.Imported)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Row 6: duplicate of row 4")
	assert.Contains(t, result.Errors[1], "Row 7")
	assert.Contains(t, result.Errors[2], "Row 8")

	assert.Equal(t, "items", deck.Name)
	assert.Equal(t, 4, deck.Len())
	assert.Len(t, Assessable(deck.Items()), 3)

	tf, ok := deck.Get(StableID(SubjectScience, "water", "Water boils at 100C at sea level"))
	require.True(t, ok)
	q, err := tf.Assessment()
	require.NoError(t, err)
	assert.Equal(t, 2, q.Points())
	assert.True(t, assessment.Score(q, "yes").Correct)

	fill, ok := deck.Get(StableID(SubjectScience, "elements", "Name the elements of glucose"))
	require.True(t, ok)
	q, err = fill.Assessment()
	require.NoError(t, err)
	assert.Equal(t, 4, assessment.Score(q, "oxygen, carbon").PointsEarned)

	choice, ok := deck.Get(StableID(SubjectGeneral, "capitals", "Capital of France?"))
	require.True(t, ok)
	assert.Equal(t, 1, choice.Question.Points, "points default to 1")
}

func TestImportWorkbook_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verbs.csv")
	data := "subject,topic,front,back\nlanguage,verbs,to run,correr\n,,,\nlanguage,verbs,to sleep,dormir\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	config := DefaultImportConfig()
	config.FilePath = path
	config.DeckName = "spanish"
	deck, result, err := ImportWorkbook(config)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "spanish", deck.Name)
	assert.False(t, deck.Items()[0].Assessable())
}

func TestImportWorkbook_MissingFile(t *testing.T) {
	config := DefaultImportConfig()
	config.FilePath = filepath.Join(t.TempDir(), "nope.xlsx")
	_, _, err := ImportWorkbook(config)
	assert.Error(t, err)
}
