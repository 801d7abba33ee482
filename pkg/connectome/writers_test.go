package connectome

import (
	"encoding/xml"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()
	const frames = 20
	series := mat.NewDense(3, frames, nil)
	for f := 0; f < frames; f++ {
		series.Set(0, f, math.Sin(float64(f)*0.4))
		series.Set(1, f, math.Cos(float64(f)*0.4))
		series.Set(2, f, float64(f))
	}
	regions := []Region{
		{ID: 0, Label: 1, Name: "cuneus-lh", Hemisphere: "left"},
		{ID: 1, Label: 2, Name: "cuneus-rh", Hemisphere: "right"},
		{ID: 2, Label: 5, Name: "brainstem"},
	}
	g, err := Build(series, regions, allTimepoints(frames))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

// TestWriteEdgeListTSV verifies the header and the upper-triangle row
// count.
func TestWriteEdgeListTSV(t *testing.T) {
	g := testGraph(t)
	path := filepath.Join(t.TempDir(), "edges.tsv")

	if err := WriteEdgeListTSV(path, g); err != nil {
		t.Fatalf("WriteEdgeListTSV failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "source\ttarget\tweight" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if len(lines)-1 != 3 { // C(3,2) edges
		t.Errorf("Expected 3 edge rows, got %d", len(lines)-1)
	}
	for _, line := range lines[1:] {
		if len(strings.Split(line, "\t")) != 3 {
			t.Errorf("Malformed edge row %q", line)
		}
	}
}

// TestWriteNodeTableTSV verifies node attributes survive.
func TestWriteNodeTableTSV(t *testing.T) {
	g := testGraph(t)
	path := filepath.Join(t.TempDir(), "nodes.tsv")

	if err := WriteNodeTableTSV(path, g); err != nil {
		t.Fatalf("WriteNodeTableTSV failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Trim only the trailing newline: the last row ends with an empty
	// hemisphere field whose tab must survive.
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 node rows, got %d lines", len(lines))
	}
	if lines[1] != "0\t1\tcuneus-lh\tleft" {
		t.Errorf("Unexpected node row %q", lines[1])
	}
	if lines[3] != "2\t5\tbrainstem\t" {
		t.Errorf("Unexpected node row %q", lines[3])
	}
}

// TestWriteGraphML verifies the document parses back with the expected
// node and edge counts and keys.
func TestWriteGraphML(t *testing.T) {
	g := testGraph(t)
	path := filepath.Join(t.TempDir(), "graph.graphml")

	if err := WriteGraphML(path, g); err != nil {
		t.Fatalf("WriteGraphML failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var doc graphmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Written GraphML does not parse: %v", err)
	}
	if len(doc.Graph.Nodes) != 3 {
		t.Errorf("Expected 3 nodes, got %d", len(doc.Graph.Nodes))
	}
	if len(doc.Graph.Edges) != 3 {
		t.Errorf("Expected 3 edges, got %d", len(doc.Graph.Edges))
	}
	if doc.Graph.EdgeDefault != "undirected" {
		t.Errorf("Expected undirected graph, got %q", doc.Graph.EdgeDefault)
	}
	if len(doc.Keys) != 4 {
		t.Errorf("Expected 4 attribute keys, got %d", len(doc.Keys))
	}
	if len(doc.Graph.Edges[0].Data) != 1 || doc.Graph.Edges[0].Data[0].Key != "corr" {
		t.Errorf("Edge data missing corr key: %+v", doc.Graph.Edges[0])
	}
}

// TestWriteDenseNpy verifies the matrix file exists and is non-empty;
// the numeric round trip is covered by the numio tests.
func TestWriteDenseNpy(t *testing.T) {
	g := testGraph(t)
	path := filepath.Join(t.TempDir(), "conn.npy")

	if err := WriteDenseNpy(path, g); err != nil {
		t.Fatalf("WriteDenseNpy failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("Empty npy file")
	}
}

// TestWriteMat verifies the MAT-file is written with the MATLAB 5.0
// signature.
func TestWriteMat(t *testing.T) {
	g := testGraph(t)
	path := filepath.Join(t.TempDir(), "conn.mat")

	if err := WriteMat(path, g); err != nil {
		t.Fatalf("WriteMat failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data[:11]), "MATLAB 5.0") {
		t.Errorf("Missing MATLAB 5.0 header: %q", string(data[:11]))
	}
}
