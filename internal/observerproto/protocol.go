package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// VertexEncoding names the CHUNK vertex payload: base64 of one (x,y,z) byte
// triple per solid cell, local to the chunk, in cell order (x fastest, then
// y, then z).
const VertexEncoding = "XYZ8"

// ColorEncoding names the CHUNK color payload: base64 of uvarint
// (0xRRGGBB, run_len) pairs, one color per vertex.
const ColorEncoding = "RLE_RGB24"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeChunk     = "CHUNK"
	TypeChunkGone = "CHUNK_GONE"
	TypeSynced    = "SYNCED"
)

// Client -> Server. First message on the observer WS connection; re-sending
// it replaces the settings and restarts the sync.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MaxChunks       int    `json:"max_chunks"`

	// Optional: only chunks within ChunkRadius (Chebyshev, in chunks) of the
	// chunk containing Focus.
	Focus       *[3]int32 `json:"focus,omitempty"`
	ChunkRadius int       `json:"chunk_radius,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	LayerID         string      `json:"layer_id"`
	Seq             uint64      `json:"seq"`
	LayerParams     LayerParams `json:"layer_params"`
}

type LayerParams struct {
	Name      string    `json:"name"`
	Origin    [3]int32  `json:"origin"`
	Extent    [3]uint32 `json:"extent"`
	Blend     string    `json:"blend"`
	ChunkSize int       `json:"chunk_size"`
	Chunks    int       `json:"chunks"`
	Solids    int       `json:"solids"`
}

// Server -> Client. Full render data for one chunk; replaces any cached copy.
type ChunkMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Key             [3]int32 `json:"key"`
	Count           int      `json:"count"`
	VertexEncoding  string   `json:"vertex_encoding"`
	Vertices        string   `json:"vertices"`
	ColorEncoding   string   `json:"color_encoding"`
	Colors          string   `json:"colors"`
}

// Server -> Client. The chunk no longer holds any solid voxel.
type ChunkGoneMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Key             [3]int32 `json:"key"`
}

// Server -> Client. Sent after the initial (or re-subscribe) batch of CHUNK
// frames.
type SyncedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Chunks          int    `json:"chunks"`
	Truncated       bool   `json:"truncated"`
}
