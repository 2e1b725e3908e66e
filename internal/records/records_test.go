package records

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/vcictl/internal/testutil/testlog"
	"github.com/xuri/excelize/v2"
)

func TestNewSetTrimsAndDeduplicates(t *testing.T) {
	testlog.Start(t)
	set := NewSet(" A ", "B", "", "A", "C")
	items := set.Items()
	if strings.Join(items, ",") != "A,B,C" {
		t.Fatalf("unexpected items: %v", items)
	}
	if !set.Contains("A") || set.Contains(" A ") {
		t.Fatalf("unexpected membership")
	}
}

func TestReadDelimitedPicksNamedColumn(t *testing.T) {
	testlog.Start(t)
	input := "Gene,Variant,Note\nBRCA1,NM_1:c.1A>G,x\nTP53,NM_2:c.2C>T\nshort\n"
	set, err := ReadDelimited(strings.NewReader(input), ',', "variant")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Join(set.Items(), "|"); got != "NM_1:c.1A>G|NM_2:c.2C>T" {
		t.Fatalf("unexpected items: %q", got)
	}
}

func TestReadDelimitedMissingColumn(t *testing.T) {
	testlog.Start(t)
	_, err := ReadDelimited(strings.NewReader("Name\nA\n"), ',', DefaultColumn)
	if !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
	if _, err := ReadDelimited(strings.NewReader(""), ',', DefaultColumn); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestLoadTSVWithBOM(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "variants.tsv")
	if err := os.WriteFile(path, []byte("\ufeffVariant\tGene\nA\tG1\nB\tG2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	set, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 2 || !set.Contains("B") {
		t.Fatalf("unexpected set: %v", set.Items())
	}
}

func TestLoadWorkbook(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "variants.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "Variant")
	_ = f.SetCellValue(sheet, "A2", "A")
	_ = f.SetCellValue(sheet, "A3", "D")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = f.Close()

	set, err := Load(path, DefaultColumn)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(set.Items(), ","); got != "A,D" {
		t.Fatalf("unexpected items: %q", got)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	testlog.Start(t)
	if _, err := Load("variants.json", ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
