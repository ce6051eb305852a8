package service

import (
	"reflect"
	"strings"
	"testing"
)

const paperHead = `Adaptive Mesh Refinement for Compressible Flow Simulations

Authors: Alice Johnson, Robert Smith and Carol Nguyen

Journal of Computational Physics, 2019
DOI: 10.1016/j.jcp.2019.01.042

Abstract:
We present an adaptive mesh refinement strategy for compressible flow
simulations that reduces the cell count by an order of magnitude while
preserving shock resolution at comparable accuracy.

Introduction
Compressible flow solvers spend most of their time on cells far from any
feature of interest.`

func TestExtractMetadata(t *testing.T) {
	e := NewMetadataExtractor()
	got := e.Extract(paperHead)

	if got.Title == nil || *got.Title != "Adaptive Mesh Refinement for Compressible Flow Simulations" {
		t.Errorf("Title = %v", got.Title)
	}

	wantAuthors := []string{"Alice Johnson", "Robert Smith", "Carol Nguyen"}
	if !reflect.DeepEqual(got.Authors, wantAuthors) {
		t.Errorf("Authors = %v, want %v", got.Authors, wantAuthors)
	}

	if got.Journal == nil || !strings.Contains(*got.Journal, "Computational Physics") {
		t.Errorf("Journal = %v", got.Journal)
	}

	if got.Year == nil || *got.Year != 2019 {
		t.Errorf("Year = %v, want 2019", got.Year)
	}

	if got.DOI == nil || *got.DOI != "10.1016/j.jcp.2019.01.042" {
		t.Errorf("DOI = %v", got.DOI)
	}

	if got.Abstract == nil || !strings.HasPrefix(*got.Abstract, "We present an adaptive mesh refinement") {
		t.Errorf("Abstract = %v", got.Abstract)
	}
}

func TestExtractMetadataAbsentFields(t *testing.T) {
	e := NewMetadataExtractor()
	got := e.Extract("a short note without any recognizable bibliographic structure")

	if got.Title != nil {
		t.Errorf("Title = %v, want nil", got.Title)
	}
	if len(got.Authors) != 0 {
		t.Errorf("Authors = %v, want none", got.Authors)
	}
	if got.Journal != nil || got.Year != nil || got.DOI != nil || got.Abstract != nil {
		t.Error("expected no journal, year, DOI, or abstract")
	}
}

func TestExtractYearPicksMostRecentNonFuture(t *testing.T) {
	e := NewMetadataExtractor()

	got := e.Extract("First published 2015, revised 2021, projections through 2029 omitted.")
	if got.Year == nil || *got.Year != 2021 {
		t.Errorf("Year = %v, want 2021", got.Year)
	}
}

func TestExtractDOIVariants(t *testing.T) {
	e := NewMetadataExtractor()

	testCases := []struct {
		name string
		text string
		want string
	}{
		{"doi prefix", "doi: 10.1000/xyz123", "10.1000/xyz123"},
		{"uppercase prefix", "DOI: 10.1000/xyz123", "10.1000/xyz123"},
		{"url form", "https://doi.org/10.1000/xyz123", "10.1000/xyz123"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Extract(tc.text)
			if got.DOI == nil || *got.DOI != tc.want {
				t.Errorf("DOI = %v, want %q", got.DOI, tc.want)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	e := NewMetadataExtractor()

	testCases := []struct {
		in   string
		want string
	}{
		{`"Quoted  Title"`, "Quoted Title"},
		{"3.  Numbered Heading", "Numbered Heading"},
		{"  Plain   Title  ", "Plain Title"},
	}

	for _, tc := range testCases {
		if got := e.cleanTitle(tc.in); got != tc.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
