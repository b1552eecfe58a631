// Package payload defines the detection submission data model and its
// validation against the ingestion API data contract
package payload

// IoC kinds accepted by the ingestion API
const (
	IoCTypeIP            = "ip"
	IoCTypeDomain        = "domain"
	IoCTypeHash          = "hash"
	IoCTypeVulnerability = "vulnerability"
	IoCTypeURL           = "url"
)

// Detection types with dedicated semantics. The API also accepts
// detector-specific types following a "detector_*" naming convention
const (
	DetectionTypeCorrelation = "correlation"
	DetectionTypePlaybook    = "playbook"
	DetectionTypeRule        = "detection_rule"
	DetectionTypeSandbox     = "sandbox"
)

// IoC is the indicator being reported
type IoC struct {
	Type       string `json:"type" validate:"required,ioctype"`
	Value      string `json:"value" validate:"required"`
	SourceType string `json:"source_type,omitempty"`
	Field      string `json:"field,omitempty"`
}

// Detection describes the mechanism that flagged the indicator.
// SubType is mandatory when Type is "detection_rule" (struct-level rule)
type Detection struct {
	Type    string `json:"type" validate:"required"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	SubType string `json:"sub_type,omitempty"`
}

// Incident is an optional cross-reference to a triggering event
type Incident struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Entry is one submission unit: exactly one IoC and one Detection
type Entry struct {
	IoC        IoC       `json:"ioc" validate:"required"`
	Detection  Detection `json:"detection" validate:"required"`
	Timestamp  string    `json:"timestamp,omitempty" validate:"omitempty,iso8601z"`
	Incident   *Incident `json:"incident,omitempty"`
	MitreCodes []string  `json:"mitre_codes,omitempty"`
	Malwares   []string  `json:"malwares,omitempty"`
}

// Options are API-level submission options
type Options struct {
	Debug   bool `json:"debug"`
	Summary bool `json:"summary"`
}

// DefaultOptions returns the options applied when a payload carries none
func DefaultOptions() Options { return Options{Debug: false, Summary: true} }

// Payload is the unit submitted to the API
type Payload struct {
	Data            []Entry  `json:"data" validate:"required,min=1,dive"`
	Options         *Options `json:"options,omitempty"`
	OrganizationIDs []string `json:"organization_ids,omitempty"`
}

// MergeOptions returns a copy of p with default options applied when absent
// and the debug flag forced on when the caller asks for it. The receiver is
// never mutated; callers keep their original payload value
func (p Payload) MergeOptions(debug bool) Payload {
	out := p
	if p.Options == nil {
		o := DefaultOptions()
		out.Options = &o
	} else {
		o := *p.Options
		out.Options = &o
	}
	if debug {
		out.Options.Debug = true
	}
	return out
}

// Chunks partitions the payload's entries into contiguous slices of at most
// size entries, preserving order. Every chunk carries its own copy of the
// payload's options and organization ids. size <= 0 yields a single chunk
func (p Payload) Chunks(size int) []Payload {
	if len(p.Data) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(p.Data)
	}
	n := (len(p.Data) + size - 1) / size
	out := make([]Payload, 0, n)
	for i := 0; i < len(p.Data); i += size {
		end := i + size
		if end > len(p.Data) {
			end = len(p.Data)
		}
		c := Payload{Data: p.Data[i:end]}
		if p.Options != nil {
			o := *p.Options
			c.Options = &o
		}
		if p.OrganizationIDs != nil {
			c.OrganizationIDs = append([]string(nil), p.OrganizationIDs...)
		}
		out = append(out, c)
	}
	return out
}
