package telephony

import (
	"encoding/xml"
	"fmt"
)

// AnswerParams is echoed back to us inside the start event's custom
// parameters, so the session can recover call context without a DB read.
type AnswerParams struct {
	Phone    string
	Persona  string
	Greeting string
}

type streamParameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type streamElement struct {
	XMLName    xml.Name `xml:"Stream"`
	URL        string   `xml:"url,attr"`
	Parameters []streamParameter
}

type connectElement struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  streamElement
}

type answerResponse struct {
	XMLName xml.Name `xml:"Response"`
	Connect connectElement
}

// AnswerXML produces the call-setup document instructing the carrier to open
// a bidirectional media stream to wsURL, carrying the call parameters.
func AnswerXML(wsURL string, p AnswerParams) ([]byte, error) {
	doc := answerResponse{
		Connect: connectElement{
			Stream: streamElement{
				URL: wsURL,
				Parameters: []streamParameter{
					{Name: "phone", Value: p.Phone},
					{Name: "persona", Value: p.Persona},
					{Name: "greeting", Value: p.Greeting},
				},
			},
		},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("telephony: marshal answer xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
