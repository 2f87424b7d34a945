package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	WorldSeed       int64      `json:"world_seed"`
	Submap          Dims       `json:"submap"`
	Catalog         CatalogRef `json:"catalog"`
}

type Dims struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

type CatalogRef struct {
	Digest string   `json:"digest"`
	Biomes []string `json:"biomes"`
}

// SubmapRef names a submap. A missing world_seed or zero rows/cols fall back
// to the server defaults announced in WELCOME.
type SubmapRef struct {
	WorldSeed *int64 `json:"world_seed,omitempty"`
	Parent    [2]int `json:"parent"`
	BiomeID   string `json:"biome_id"`
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
}

// RESOLVE and VILLAGE_ENTRY (client -> server)
type TileReqMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ReqID           string    `json:"req_id"`
	Submap          SubmapRef `json:"submap"`
	Local           [2]int    `json:"local"`
}

// RENDER (client -> server)
type RenderMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ReqID           string    `json:"req_id"`
	Submap          SubmapRef `json:"submap"`
}

// TILE (server -> client)
type TileMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Terrain         string `json:"terrain"`
	Impassable      bool   `json:"impassable"`
}

// ENTRY (server -> client)
type EntryMsg struct {
	Type             string `json:"type"`
	ProtocolVersion  string `json:"protocol_version"`
	ReqID            string `json:"req_id"`
	Adjacent         bool   `json:"adjacent"`
	VillageDirection string `json:"village_direction,omitempty"`
	EntryDirection   string `json:"entry_direction,omitempty"`
}

// EncodingRLE is base64 varint (value, run) pairs, see internal/sim/encoding.
const EncodingRLE = "RLE"

// SUBMAP (server -> client). Cells index Palette in row-major order; Blocked
// holds one 0/1 value per cell. Both use Encoding.
type SubmapMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	Rows            int      `json:"rows"`
	Cols            int      `json:"cols"`
	Digest          string   `json:"digest"`
	Palette         []string `json:"palette"`
	Encoding        string   `json:"encoding"`
	Cells           string   `json:"cells"`
	Blocked         string   `json:"blocked"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: message}
}
