package connectome

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"boldpipe/pkg/numio"
)

// The serialization functions below are format adapters: each encodes
// the same edge weights and node attributes, and none alters them.

// WriteEdgeListTSV writes the upper-triangle edge list as
// source, target, weight rows (node ids). NaN weights are written
// literally so degenerate regions survive the round trip.
func WriteEdgeListTSV(path string, g *Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write edge list %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "source\ttarget\tweight")
	n := g.N()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			fmt.Fprintf(w, "%d\t%d\t%s\n", i, j, strconv.FormatFloat(g.Weight(i, j), 'g', -1, 64))
		}
	}
	return w.Flush()
}

// WriteNodeTableTSV writes the node attributes as
// id, label, name, hemisphere rows.
func WriteNodeTableTSV(path string, g *Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write node table %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "id\tlabel\tname\themisphere")
	for _, r := range g.Regions {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", r.ID, r.Label, r.Name, r.Hemisphere)
	}
	return w.Flush()
}

// WriteDenseNpy writes the dense connectivity matrix to a .npy file.
func WriteDenseNpy(path string, g *Graph) error {
	return numio.WriteMatrixNpy(path, g.Dense())
}

// WriteMat writes the connectivity matrix and node attributes to a
// MATLAB file: variables corr (N x N), labels (N x 1), names and
// hemispheres (char matrices).
func WriteMat(path string, g *Graph) error {
	labels := make([]float64, g.N())
	names := make([]string, g.N())
	hemis := make([]string, g.N())
	for i, r := range g.Regions {
		labels[i] = float64(r.Label)
		names[i] = r.Name
		hemis[i] = r.Hemisphere
	}
	return numio.WriteMat(path,
		numio.MatMatrix("corr", g.Dense()),
		numio.MatVector("labels", labels),
		numio.MatStrings("names", names),
		numio.MatStrings("hemispheres", hemis),
	)
}

// graphml document structure, matching the usual key/data layout.
type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	Xmlns   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphmlData `xml:"data"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML writes the graph in GraphML with node keys dn_label,
// dn_name, dn_hemisphere and edge key corr.
func WriteGraphML(path string, g *Graph) error {
	doc := graphmlDoc{
		Xmlns: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphmlKey{
			{ID: "dn_label", For: "node", Name: "dn_label", Type: "int"},
			{ID: "dn_name", For: "node", Name: "dn_name", Type: "string"},
			{ID: "dn_hemisphere", For: "node", Name: "dn_hemisphere", Type: "string"},
			{ID: "corr", For: "edge", Name: "corr", Type: "double"},
		},
		Graph: graphmlGraph{
			ID:          "connectome",
			EdgeDefault: "undirected",
		},
	}

	for _, r := range g.Regions {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphmlNode{
			ID: strconv.Itoa(r.ID),
			Data: []graphmlData{
				{Key: "dn_label", Value: strconv.Itoa(int(r.Label))},
				{Key: "dn_name", Value: r.Name},
				{Key: "dn_hemisphere", Value: r.Hemisphere},
			},
		})
	}

	n := g.N()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{
				Source: strconv.Itoa(i),
				Target: strconv.Itoa(j),
				Data: []graphmlData{
					{Key: "corr", Value: strconv.FormatFloat(g.Weight(i, j), 'g', -1, 64)},
				},
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write graphml %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprint(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode graphml %s: %w", path, err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	return w.Flush()
}
