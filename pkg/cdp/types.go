package cdp

// Location CDP script location.
//
// For WebAssembly scripts, LineNumber is always 0 and ColumnNumber holds the
// byte offset into the module.
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// RemoteObject mirror of Runtime.RemoteObject, only the fields we consume
type RemoteObject struct {
	Type                string `json:"type"`
	Subtype             string `json:"subtype,omitempty"`
	ClassName           string `json:"className,omitempty"`
	Value               any    `json:"value,omitempty"`
	UnserializableValue string `json:"unserializableValue,omitempty"`
	Description         string `json:"description,omitempty"`
	ObjectID            string `json:"objectId,omitempty"`
}

// PropertyDescriptor mirror of Runtime.PropertyDescriptor
type PropertyDescriptor struct {
	Name  string        `json:"name"`
	Value *RemoteObject `json:"value,omitempty"`
}

// Scope one entry of a call frame's scope chain
type Scope struct {
	Type   string       `json:"type"`
	Object RemoteObject `json:"object"`
}

// CallFrame mirror of Debugger.CallFrame
type CallFrame struct {
	CallFrameID  string   `json:"callFrameId"`
	FunctionName string   `json:"functionName"`
	Location     Location `json:"location"`
	URL          string   `json:"url"`
	ScopeChain   []Scope  `json:"scopeChain"`
}

// ScriptParsedEvent Debugger.scriptParsed
type ScriptParsedEvent struct {
	ScriptID       string `json:"scriptId"`
	URL            string `json:"url"`
	ScriptLanguage string `json:"scriptLanguage"`
}

// PausedEvent Debugger.paused
type PausedEvent struct {
	CallFrames []CallFrame `json:"callFrames"`
	Reason     string      `json:"reason"`
}

// TargetInfo mirror of Target.TargetInfo
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// AttachedToTargetEvent Target.attachedToTarget
type AttachedToTargetEvent struct {
	SessionID          string     `json:"sessionId"`
	TargetInfo         TargetInfo `json:"targetInfo"`
	WaitingForDebugger bool       `json:"waitingForDebugger"`
}

// DetachedFromTargetEvent Target.detachedFromTarget
type DetachedFromTargetEvent struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId"`
}
