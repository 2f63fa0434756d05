package sidecar

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

const (
	xmpPacketBegin = `<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>` + "\n"
	xmpPacketEnd   = "\n" + `<?xpacket end="w"?>` + "\n"
)

type xmpMeta struct {
	XMLName xml.Name `xml:"x:xmpmeta"`
	NS      string   `xml:"xmlns:x,attr"`
	RDF     xmpRDF   `xml:"rdf:RDF"`
}

type xmpRDF struct {
	NS          string         `xml:"xmlns:rdf,attr"`
	Description xmpDescription `xml:"rdf:Description"`
}

type xmpDescription struct {
	About       string `xml:"rdf:about,attr"`
	DCNS        string `xml:"xmlns:dc,attr"`
	XMPNS       string `xml:"xmlns:xmp,attr"`
	Description xmpAlt `xml:"dc:description"`
	Subject     xmpBag `xml:"dc:subject"`
	Rating      int    `xml:"xmp:Rating"`
}

type xmpAlt struct {
	Items []xmpLangItem `xml:"rdf:Alt>rdf:li"`
}

type xmpLangItem struct {
	Lang  string `xml:"xml:lang,attr"`
	Value string `xml:",chardata"`
}

type xmpBag struct {
	Items []string `xml:"rdf:Bag>rdf:li"`
}

// XMPPathFor returns the XMP sidecar location: the video path with its
// extension replaced by .xmp, which is what photo and video catalogs look for.
func XMPPathFor(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".xmp"
}

// Rating maps a 1-10 quality score onto the 0-5 XMP star rating.
func Rating(qualityScore int) int {
	stars := int(math.Round(float64(qualityScore) / 2))
	if stars < 0 {
		return 0
	}
	if stars > 5 {
		return 5
	}
	return stars
}

// EncodeXMP renders the summary, tags and rating of a sidecar as an XMP packet.
func EncodeXMP(sc *models.Sidecar) ([]byte, error) {
	meta := xmpMeta{
		NS: "adobe:ns:meta/",
		RDF: xmpRDF{
			NS: "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
			Description: xmpDescription{
				DCNS:        "http://purl.org/dc/elements/1.1/",
				XMPNS:       "http://ns.adobe.com/xap/1.0/",
				Description: xmpAlt{Items: []xmpLangItem{{Lang: "x-default", Value: sc.Summary}}},
				Subject:     xmpBag{Items: sc.Tags},
				Rating:      Rating(sc.Quality.OverallScore),
			},
		},
	}

	body, err := xml.MarshalIndent(meta, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode xmp: %w", err)
	}

	out := make([]byte, 0, len(xmpPacketBegin)+len(body)+len(xmpPacketEnd))
	out = append(out, xmpPacketBegin...)
	out = append(out, body...)
	out = append(out, xmpPacketEnd...)
	return out, nil
}

// WriteXMP writes the XMP sidecar for a video, replacing any previous one.
func WriteXMP(videoPath string, sc *models.Sidecar) (string, error) {
	data, err := EncodeXMP(sc)
	if err != nil {
		return "", err
	}

	target := XMPPathFor(videoPath)
	tmp, err := writeTemp(target, data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("failed to write xmp: %w", err)
	}
	return target, nil
}
