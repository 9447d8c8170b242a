package roster

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"Name,Student ID,Email",
		"Alice Ngo,S001,alice@example.edu",
		`"Bob Tran",S002`,
		"x,1", // name and id too short
		"just-one-field",
		"Carol Pham , S003 , carol@example.edu",
		"",
	}, "\n")

	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Students) != 3 {
		t.Fatalf("got %d students, want 3: %+v", len(res.Students), res.Students)
	}
	if res.Skipped != 3 {
		t.Errorf("skipped = %d, want 3 (header + short + one-field)", res.Skipped)
	}

	alice := res.Students[0]
	if alice.Name != "Alice Ngo" || alice.StudentID != "S001" || alice.Email != "alice@example.edu" {
		t.Errorf("first student = %+v", alice)
	}
	if alice.ID == "" {
		t.Error("student id not assigned")
	}

	bob := res.Students[1]
	if bob.Name != "Bob Tran" || bob.StudentID != "S002" || bob.Email != "" {
		t.Errorf("quoted/short-line student = %+v", bob)
	}

	carol := res.Students[2]
	if carol.Name != "Carol Pham" || carol.StudentID != "S003" {
		t.Errorf("whitespace-padded student = %+v", carol)
	}
}

func TestParseNoHeader(t *testing.T) {
	res, err := Parse(strings.NewReader("Alice Ngo,S001\nBob Tran,S002\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Students) != 2 || res.Skipped != 0 {
		t.Errorf("got %d students %d skipped, want 2/0", len(res.Students), res.Skipped)
	}
}

func TestParseControlBytes(t *testing.T) {
	res, err := Parse(strings.NewReader("Alice Ngo,S001\nBi\x01nary,S002\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Students) != 1 || res.Skipped != 1 {
		t.Errorf("got %d students %d skipped, want 1/1", len(res.Students), res.Skipped)
	}
}

func TestParseEmpty(t *testing.T) {
	res, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Students) != 0 {
		t.Errorf("expected no students, got %+v", res.Students)
	}
}
