package dataset

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sandro385/expert-tune/internal/model"
)

const instruction = "შექმენი {domain} პასუხი.\n"

func turns(contents ...string) []model.Turn {
	out := make([]model.Turn, 0, len(contents))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.Turn{Role: role, Content: c})
	}
	return out
}

func TestBuildPairsConsecutiveTurns(t *testing.T) {
	b := NewBuilder(instruction, PairConsecutive)
	got := b.Build(turns("u1", "a1", "u2", "a2"), "იურისტი")

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Prompt != "შექმენი იურისტი პასუხი.\nu1" || got[0].Completion != "a1" {
		t.Fatalf("record 0 = %+v", got[0])
	}
	if !strings.Contains(got[1].Prompt, "u2") || got[1].Completion != "a2" {
		t.Fatalf("record 1 = %+v", got[1])
	}
}

func TestBuildEdgeCases(t *testing.T) {
	b := NewBuilder(instruction, PairConsecutive)

	cases := []struct {
		name string
		in   []model.Turn
		want int
	}{
		{"empty", nil, 0},
		{"single", turns("u1"), 0},
		{"odd trailing dropped", turns("u1", "a1", "u2"), 1},
		{"even", turns("u1", "a1", "u2", "a2", "u3", "a3"), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := b.Build(tc.in, "სხვა")
			if got == nil {
				t.Fatal("result must be non-nil")
			}
			if len(got) != tc.want {
				t.Fatalf("got %d records, want %d", len(got), tc.want)
			}
		})
	}
}

func TestBuildOffsetPairing(t *testing.T) {
	b := NewBuilder(instruction, PairOffset)
	got := b.Build(turns("hello", "q1", "ans1", "q2", "ans2"), "ფსიქოლოგი")
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if !strings.HasSuffix(got[0].Prompt, "q1") || got[0].Completion != "ans1" {
		t.Fatalf("record 0 = %+v", got[0])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(instruction, PairConsecutive)
	conv := turns("u1", "a1", "u2", "a2", "u3")

	var first, second bytes.Buffer
	if err := WriteJSONL(&first, b.Build(conv, "რესტორატორი")); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSONL(&second, b.Build(conv, "რესტორატორი")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("identical input produced different output")
	}
}

func TestParsePairing(t *testing.T) {
	if p, err := ParsePairing(""); err != nil || p != PairConsecutive {
		t.Fatalf("empty: %v %v", p, err)
	}
	if p, err := ParsePairing("Offset"); err != nil || p != PairOffset {
		t.Fatalf("offset: %v %v", p, err)
	}
	if _, err := ParsePairing("random"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriteJSONLKeepsNonASCII(t *testing.T) {
	var buf bytes.Buffer
	records := []model.TrainingRecord{{Prompt: "შექმენი <იურისტი> პასუხი.\nრა?", Completion: "პასუხი & მეტი"}}
	if err := WriteJSONL(&buf, records); err != nil {
		t.Fatal(err)
	}
	want := `{"prompt":"შექმენი <იურისტი> პასუხი.\nრა?","completion":"პასუხი & მეტი"}` + "\n"
	if buf.String() != want {
		t.Fatalf("got  %q\nwant %q", buf.String(), want)
	}
	if strings.Contains(buf.String(), `\u`) {
		t.Fatal("non-ASCII must not be escaped")
	}
}

func TestWriteJSONLKeepsLineSeparatorsLiteral(t *testing.T) {
	var buf bytes.Buffer
	records := []model.TrainingRecord{{Prompt: "ა\u2028ბ", Completion: "გ\u2029დ"}, {Prompt: `\u2028`, Completion: `\\u2029`}}
	if err := WriteJSONL(&buf, records); err != nil {
		t.Fatal(err)
	}
	want := "{\"prompt\":\"ა\u2028ბ\",\"completion\":\"გ\u2029დ\"}\n" +
		`{"prompt":"\\u2028","completion":"\\\\u2029"}` + "\n"
	if buf.String() != want {
		t.Fatalf("got  %q\nwant %q", buf.String(), want)
	}

	var back []model.TrainingRecord
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var r model.TrainingRecord
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		back = append(back, r)
	}
	if len(back) != 2 || back[0] != records[0] || back[1] != records[1] {
		t.Fatalf("round trip changed records: %+v", back)
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dataset.jsonl")
	long := []model.TrainingRecord{{Prompt: "p1", Completion: "c1"}, {Prompt: "p2", Completion: "c2"}}
	if err := WriteFile(path, long); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFile(path, long[:1]); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("file not overwritten, %d lines: %q", len(lines), data)
	}
}
