package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/scanhook/scanhook/internal/blob"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frags []Fragment
		want  string
	}{
		{
			name: "lines only, words ignored",
			frags: []Fragment{
				{Type: "line", Text: "Hello"},
				{Type: "word", Text: "ignored"},
				{Type: "line", Text: "World"},
			},
			want: "Hello\nWorld",
		},
		{
			name:  "upper-case type tags",
			frags: []Fragment{{Type: TypeLine, Text: "Q1 Revenue"}, {Type: TypeLine, Text: "$42M"}},
			want:  "Q1 Revenue\n$42M",
		},
		{
			name:  "empty line keeps its segment",
			frags: []Fragment{{Type: TypeLine, Text: "a"}, {Type: TypeLine}, {Type: TypeLine, Text: "b"}},
			want:  "a\n\nb",
		},
		{
			name:  "no lines",
			frags: []Fragment{{Type: TypeWord, Text: "x"}},
			want:  "",
		},
		{
			name: "nil",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.frags); got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t200\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t40\t20\t96.1\tQ1\n" +
	"5\t1\t1\t1\t1\t2\t60\t10\t90\t20\t95.3\tRevenue\n" +
	"4\t1\t1\t1\t2\t0\t10\t40\t60\t20\t-1\t\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t60\t20\t91.0\t$42M\n" +
	"5\t1\t1\t1\t2\t2\t80\t40\t10\t20\t12.0\t \n"

func TestParseTSV(t *testing.T) {
	t.Parallel()
	frags, err := parseTSV([]byte(sampleTSV))
	if err != nil {
		t.Fatalf("parseTSV: %v", err)
	}
	want := []Fragment{
		{Type: TypeLine, Text: "Q1 Revenue"},
		{Type: TypeWord, Text: "Q1"},
		{Type: TypeWord, Text: "Revenue"},
		{Type: TypeLine, Text: "$42M"},
		{Type: TypeWord, Text: "$42M"},
	}
	if !reflect.DeepEqual(frags, want) {
		t.Errorf("parseTSV() = %+v, want %+v", frags, want)
	}
	if got := Normalize(frags); got != "Q1 Revenue\n$42M" {
		t.Errorf("Normalize(parseTSV()) = %q", got)
	}
}

func TestParseTSV_BadNumber(t *testing.T) {
	t.Parallel()
	bad := "header\n5\tx\t1\t1\t1\t1\t0\t0\t0\t0\t90\tword\n"
	if _, err := parseTSV([]byte(bad)); err == nil {
		t.Error("expected error for non-numeric page column")
	}
}

type fakeLocator struct{ path string }

func (l fakeLocator) Path(blob.ObjectRef) (string, error) { return l.path, nil }

type fakeRunner struct {
	stdout, stderr []byte
	err            error
	gotName        string
	gotArgs        []string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.gotName, r.gotArgs = name, args
	return r.stdout, r.stderr, r.err
}

func TestTesseract_Extract(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{stdout: []byte(sampleTSV)}
	ex := NewTesseract(TesseractConfig{Lang: "deu"}, fakeLocator{path: "/data/abc"}, nil)
	ex.runner = runner

	frags, err := ex.Extract(context.Background(), blob.ObjectRef{Bucket: "b", Key: "abc"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 5 {
		t.Errorf("fragments = %d, want 5", len(frags))
	}
	if runner.gotName != "tesseract" {
		t.Errorf("binary = %q, want tesseract", runner.gotName)
	}
	wantArgs := []string{"/data/abc", "stdout", "-l", "deu", "tsv"}
	if !reflect.DeepEqual(runner.gotArgs, wantArgs) {
		t.Errorf("args = %v, want %v", runner.gotArgs, wantArgs)
	}
}

func TestTesseract_ExtractFailure(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{stderr: []byte("Error opening data file"), err: errors.New("exit status 1")}
	ex := NewTesseract(TesseractConfig{}, fakeLocator{path: "/data/abc"}, nil)
	ex.runner = runner

	_, err := ex.Extract(context.Background(), blob.ObjectRef{Bucket: "b", Key: "abc"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Error opening data file") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestChildEnv_DropsServiceSecrets(t *testing.T) {
	env := []string{
		"PATH=/usr/bin",
		"SCANHOOK_API_KEYS=k1",
		"SCANHOOK_UPLOAD_SIGNING_KEY=secret",
		"TESSDATA_PREFIX=/usr/share/tessdata",
	}
	got := childEnv(env)
	if len(got) != 2 || got[0] != "PATH=/usr/bin" || got[1] != "TESSDATA_PREFIX=/usr/share/tessdata" {
		t.Errorf("childEnv = %v", got)
	}
}
