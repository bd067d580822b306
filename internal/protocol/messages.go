package protocol

// GENERATE (client -> server)
type GenerateMsg struct {
	Type               string `json:"type"`
	ProtocolVersion    string `json:"protocol_version"`
	RequestID          string `json:"request_id,omitempty"`
	Recipe             string `json:"recipe,omitempty"`
	Seed               int64  `json:"seed"`
	LocationType       string `json:"location_type,omitempty"`
	Faction            string `json:"faction,omitempty"`
	CriticallyRadiated bool   `json:"critically_radiated,omitempty"`
	OnlyEntrance       bool   `json:"only_entrance,omitempty"`
}

// OUTPOST (server -> client)
type OutpostMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RequestID       string   `json:"request_id,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
	Recipe          string   `json:"recipe"`
	Seed            int64    `json:"seed"`
	LocationType    string   `json:"location_type,omitempty"`
	Digest          string   `json:"digest"`
	Valid           bool     `json:"valid"`
	Prebuilt        bool     `json:"prebuilt"`
	Missing         []string `json:"missing,omitempty"`
	Attempts        int      `json:"attempts"`
	Sequence        []string `json:"sequence"`

	Modules  []ModuleRef    `json:"modules"`
	Entities map[string]int `json:"entities"`
}

type ModuleRef struct {
	Node      int      `json:"node"`
	Template  string   `json:"template"`
	Parent    int      `json:"parent"`
	Gap       string   `json:"gap,omitempty"`
	Offset    [2]int   `json:"offset"`
	Fulfilled []string `json:"fulfilled,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(requestID, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            code,
		Message:         message,
	}
}
