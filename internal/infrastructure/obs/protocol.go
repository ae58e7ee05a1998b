package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// Request frame vocabulary of the streaming tool's RPC protocol.
const (
	cmdGetAuthRequired    = "GetAuthRequired"
	cmdAuthenticate       = "Authenticate"
	cmdGetSceneList       = "GetSceneList"
	cmdSetCurrentScene    = "SetCurrentScene"
	cmdStartStreaming     = "StartStreaming"
	cmdStopStreaming      = "StopStreaming"
	cmdGetStreamingStatus = "GetStreamingStatus"
	cmdSetTextProperties  = "SetTextGDIPlusProperties"
	cmdCreateSource       = "CreateSource"
)

const statusError = "error"

// inboundFrame is the envelope every server frame is probed with.
// Correlated responses carry message-id; unsolicited frames carry
// update-type instead. Some frames carry both and are dispatched twice.
type inboundFrame struct {
	MessageID  string `json:"message-id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	UpdateType string `json:"update-type"`
}

type authRequiredResponse struct {
	AuthRequired bool   `json:"authRequired"`
	Challenge    string `json:"challenge"`
	Salt         string `json:"salt"`
}

type authenticateRequest struct {
	Auth string `json:"auth"`
}

type sceneEntry struct {
	Name string `json:"name"`
}

type sceneListResponse struct {
	CurrentScene string       `json:"current-scene"`
	Scenes       []sceneEntry `json:"scenes"`
}

type setCurrentSceneRequest struct {
	SceneName string `json:"scene-name"`
}

type streamingStatusResponse struct {
	Streaming bool `json:"streaming"`
	Recording bool `json:"recording"`
}

type setTextPropertiesRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

type textSourceSettings struct {
	Text string `json:"text"`
}

type createSourceRequest struct {
	SourceName     string             `json:"sourceName"`
	SourceKind     string             `json:"sourceKind"`
	SceneName      string             `json:"sceneName"`
	SourceSettings textSourceSettings `json:"sourceSettings"`
}

// encodeRequest merges the typed payload with the protocol envelope:
// {request-type, message-id, ...payload fields}.
func encodeRequest(requestType, messageID string, payload interface{}) ([]byte, error) {
	frame := map[string]json.RawMessage{}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &frame); err != nil {
			return nil, err
		}
	}
	frame["request-type"] = mustJSON(requestType)
	frame["message-id"] = mustJSON(messageID)
	return json.Marshal(frame)
}

func mustJSON(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// authToken derives the handshake response: the password is hashed with
// the server salt, and the base64 of that hash is hashed again with the
// server challenge.
func authToken(password, challenge, salt string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretEncoded := base64.StdEncoding.EncodeToString(secret[:])
	response := sha256.Sum256([]byte(secretEncoded + challenge))
	return base64.StdEncoding.EncodeToString(response[:])
}
