package derive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/teranos/artificer/artifact"
)

// DefaultEncoding is assumed for XML documents without an encoding declaration
const DefaultEncoding = "UTF-8"

const (
	contentTypeXML    = "application/xml"
	contentTypeBinary = "application/octet-stream"
)

// Describe returns the content descriptor of b. XML content gets its declared
// encoding, or DefaultEncoding.
func Describe(name string, b []byte) *artifact.Content {
	sum := sha256.Sum256(b)
	c := &artifact.Content{
		Size: int64(len(b)),
		Hash: hex.EncodeToString(sum[:]),
		Type: contentTypeBinary,
	}
	if xmlRoot(b) != nil {
		c.Type = contentTypeXML
		c.Encoding = DetectEncoding(b)
		return c
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		c.Type = t
	}
	return c
}

// DetectEncoding reads the encoding pseudo-attribute of the XML declaration
func DetectEncoding(b []byte) string {
	if !bytes.HasPrefix(bytes.TrimLeft(b, "\xef\xbb\xbf"), []byte("<?xml")) {
		return DefaultEncoding
	}
	doc, err := xmlquery.Parse(bytes.NewReader(b))
	if err != nil {
		return DefaultEncoding
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.DeclarationNode {
			if enc := n.SelectAttr("encoding"); enc != "" {
				return strings.ToUpper(enc)
			}
			break
		}
	}
	return DefaultEncoding
}
