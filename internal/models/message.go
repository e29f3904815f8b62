package models

// RPC actions understood by the daemon.
const (
	ActionTransferFiles  = "transferFiles"
	ActionGetStoredFiles = "getStoredFiles"
	ActionOpenTool       = "openTool"
	ActionOpenLink       = "openLink"
	ActionContextMenu    = "contextMenu"
	ActionReceiveFiles   = "receiveFiles"
	ActionSiteReady      = "siteReady"
	ActionExtensionInfo  = "extensionInfo"
	ActionPing           = "ping"
	ActionGetStats       = "getStats"
	ActionFetchURL       = "fetchUrl"
	ActionDetectPDFs     = "detectPdfs"
	ActionAck            = "ack"
)

// MessageSource marks messages pushed by the launcher.
const MessageSource = "localpdf-extension"

// TransferOptions carries caller options for a transfer.
type TransferOptions struct {
	Language string `json:"language,omitempty"`
}

// Request is the envelope of a cross-context RPC call.
type Request struct {
	Action    string           `json:"action"`
	Files     []SerializedFile `json:"files,omitempty"`
	Tool      string           `json:"tool,omitempty"`
	Options   TransferOptions  `json:"options,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	URL       string           `json:"url,omitempty"`
	MenuID    string           `json:"menuId,omitempty"`
}

// Response is the envelope of every RPC answer.
type Response struct {
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	TabID          string          `json:"tabId,omitempty"`
	TransferMethod TransferMethod  `json:"transferMethod,omitempty"`
	URL            string          `json:"url,omitempty"`
	Data           *StoredRecord   `json:"data,omitempty"`
	Status         string          `json:"status,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"`
	Info           *ExtensionInfo  `json:"info,omitempty"`
	Stats          map[string]int  `json:"stats,omitempty"`
	File           *SerializedFile `json:"file,omitempty"`
	Page           *PageInfo       `json:"page,omitempty"`
}

// TabMessage is pushed to a destination tab (postmessage strategy).
type TabMessage struct {
	Action         string           `json:"action"`
	Source         string           `json:"source"`
	Files          []SerializedFile `json:"files"`
	TargetTool     string           `json:"targetTool"`
	SessionID      string           `json:"sessionId"`
	TransferMethod TransferMethod   `json:"transferMethod"`
}

// TabAck is the destination's answer to a TabMessage.
type TabAck struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ExtensionInfo describes the launcher to the destination site.
type ExtensionInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// PageInfo is what PDF detection found on a web page.
type PageInfo struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	IsPDFPage bool      `json:"isPdfPage"`
	PDFLinks  []PDFLink `json:"pdfLinks"`
}

type PDFLink struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}
