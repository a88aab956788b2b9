package nameparse

import "testing"

func TestDepartmentFor_KnownCodeIsCaseInsensitive(t *testing.T) {
	dept, ok := DepartmentFor("cs")
	if !ok || dept != "computer science" {
		t.Fatalf("got %q, %v", dept, ok)
	}
}

func TestDepartmentFor_UnknownCodeIsNotRecognized(t *testing.T) {
	_, ok := DepartmentFor("ZZZ")
	if ok {
		t.Fatal("expected unknown code to be unrecognized")
	}
}

func TestDepartmentMatches_EmptyDepartmentNeverMatches(t *testing.T) {
	if departmentMatches("CS", "") {
		t.Fatal("empty department must not match")
	}
}

func TestDepartmentMatches_SubstringOfSubjectCodeMatches(t *testing.T) {
	if !departmentMatches("CS", "School of CS Studies") {
		t.Fatal("expected raw code substring to match")
	}
}

func TestDepartmentMatches_KnownDepartmentNameMatches(t *testing.T) {
	if !departmentMatches("MAT", "Department of Mathematics") {
		t.Fatal("expected department table lookup to match")
	}
}

func TestDepartmentMatches_UnrelatedDepartmentDoesNotMatch(t *testing.T) {
	if departmentMatches("CS", "Department of Biology") {
		t.Fatal("unrelated department must not match")
	}
}
