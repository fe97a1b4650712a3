// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// PubSubConfig is the top-level shape of a PubSub configuration file: the
// address-space definitions this instance publishes from/subscribes into,
// followed by the Connections it drives (spec.md §3, §7).
type PubSubConfig struct {
	// Addr is the diagnostics HTTP server's listen address ("127.0.0.1:8080").
	Addr string `json:"addr,omitempty"`

	// LogLevel is one of pkg/log's level names ("debug", "info", "warn",
	// "err"); LogDate switches on date/time prefixes in log output.
	LogLevel string `json:"logLevel,omitempty"`
	LogDate  bool   `json:"logDate,omitempty"`

	// SksAddr/SksSubject locate the Security Key Service's NATS endpoint
	// (spec.md §4.5's GetSecurityKeys, internal/pubsub/sks). Leave both
	// empty to run with no SKS reachable; SecurityGroups referencing keys
	// then simply never become Ready.
	SksAddr    string `json:"sksAddr,omitempty"`
	SksSubject string `json:"sksSubject,omitempty"`

	// PublishedDataSets is keyed by name; DataSetWriterConfig.PublishedDataSet
	// references a key here.
	PublishedDataSets map[string]PublishedDataSetConfig `json:"publishedDataSets"`

	// SecurityGroups is keyed by securityGroupId; WriterGroupConfig/
	// ReaderGroupConfig.SecurityGroupID references a key here.
	SecurityGroups map[string]SecurityGroupConfig `json:"securityGroups"`

	Connections []ConnectionConfig `json:"connections"`
}

// FieldConfig is one DataSetField of a PublishedDataSet (spec.md §3).
type FieldConfig struct {
	Name string `json:"name"`

	// TargetNodeID is the address-space node read at publish time, in
	// textual NodeId notation ("ns=2;s=Temperature", "ns=0;i=2258", ...).
	TargetNodeID string `json:"targetNodeId"`
	AttributeID  string `json:"attributeId,omitempty"` // "Value" (default) or "Status"
	IndexRange   string `json:"indexRange,omitempty"`

	PromotedField   bool   `json:"promotedField,omitempty"`
	MaxStringLength uint32 `json:"maxStringLength,omitempty"`

	// BuiltinType names the wire type this field samples as ("Double",
	// "Int32", "String", ...); see pkg/ua.BuiltinType for the accepted set.
	BuiltinType     string   `json:"builtinType"`
	ValueRank       int32    `json:"valueRank,omitempty"`
	ArrayDimensions []uint32 `json:"arrayDimensions,omitempty"`
}

// PublishedDataSetConfig is a named, ordered field list (spec.md §3).
type PublishedDataSetConfig struct {
	Fields []FieldConfig `json:"fields"`
}

// SecurityGroupConfig names a KeyStorage/Policy pair shared by every
// WriterGroup/ReaderGroup that references it by securityGroupId (spec.md
// §4.5).
type SecurityGroupConfig struct {
	// PolicyURI selects the SecurityPolicy implementation; currently only
	// "http://opcfoundation.org/UA/SecurityPolicy#PubSub-Aes256-CTR" is
	// implemented.
	PolicyURI string `json:"policyUri"`
}

// ConnectionConfig is one transport-level Connection (spec.md §3, §4.6).
type ConnectionConfig struct {
	Name string `json:"name"`

	// ProfileURI selects the ConnectionManager: one of
	// transport.ProfileUDPUADP, ProfileMQTTUADP, ProfileMQTTJSON, ProfileETHUADP.
	ProfileURI string `json:"profileUri"`

	// PublisherID is this Connection's identity on the wire, in textual
	// notation (a bare number is UInt32; "string:<s>", "byte:<n>",
	// "uint16:<n>", "uint64:<n>" select the other PublisherId variants).
	PublisherID string `json:"publisherId"`

	// Address is the endpoint URL: "opc.udp://239.0.0.1:4840",
	// "opc.tcp://broker.example:1883/topic-root" (used as the MQTT broker
	// URL+topic root) or "opc.eth://01:02:03:04:05:06".
	Address string `json:"address"`

	Properties map[string]string `json:"properties,omitempty"`

	WriterGroups []WriterGroupConfig `json:"writerGroups,omitempty"`
	ReaderGroups []ReaderGroupConfig `json:"readerGroups,omitempty"`
}

// WriterGroupConfig is one periodic publisher (spec.md §3, §4.2).
type WriterGroupConfig struct {
	Name string `json:"name"`

	WriterGroupID uint16 `json:"writerGroupId"`

	// PublishingInterval and KeepAliveTime are durations parsed with
	// time.ParseDuration ("100ms", "1s").
	PublishingInterval string `json:"publishingInterval"`
	KeepAliveTime      string `json:"keepAliveTime,omitempty"`

	Priority uint8 `json:"priority,omitempty"`

	// Encoding is "UADP" (default) or "JSON".
	Encoding string `json:"encoding,omitempty"`

	// SecurityMode is "None" (default), "Sign" or "SignAndEncrypt".
	SecurityMode    string `json:"securityMode,omitempty"`
	SecurityGroupID string `json:"securityGroupId,omitempty"`

	MaxEncapsulatedDataSetMessageCount uint8 `json:"maxEncapsulatedDataSetMessageCount,omitempty"`

	// DedicatedTopic, when non-empty, gives this WriterGroup its own MQTT
	// topic / Ethernet destination instead of sharing the Connection's
	// single send channel (spec.md §3).
	DedicatedTopic string `json:"dedicatedTopic,omitempty"`

	DataSetWriters []DataSetWriterConfig `json:"dataSetWriters"`
}

// DataSetWriterConfig binds a PublishedDataSet to a WriterGroup (spec.md §3).
type DataSetWriterConfig struct {
	WriterID uint16 `json:"writerId"`

	// PublishedDataSet references a key of PubSubConfig.PublishedDataSets.
	// Empty means a heartbeat-only writer with no fields.
	PublishedDataSet string `json:"publishedDataSet,omitempty"`

	KeyFrameCount uint32 `json:"keyFrameCount,omitempty"`

	// FieldContentMask lists any of "StatusCode", "SourceTimestamp",
	// "ServerTimestamp", "SourcePicoseconds", "ServerPicoseconds", "RawData".
	FieldContentMask []string `json:"fieldContentMask,omitempty"`
}

// ReaderGroupConfig is one container of DataSetReaders (spec.md §3).
type ReaderGroupConfig struct {
	Name string `json:"name"`

	SecurityMode    string `json:"securityMode,omitempty"`
	SecurityGroupID string `json:"securityGroupId,omitempty"`

	// DedicatedTopic, when non-empty, subscribes this group to its own
	// topic instead of sharing the Connection's receive channels.
	DedicatedTopic string `json:"dedicatedTopic,omitempty"`

	DataSetReaders []DataSetReaderConfig `json:"dataSetReaders"`
}

// TargetVariableConfig is one SubscribedDataSet TargetVariables entry
// (spec.md §3, §6).
type TargetVariableConfig struct {
	TargetNodeID string `json:"targetNodeId"`
	AttributeID  string `json:"attributeId,omitempty"`
	IndexRange   string `json:"indexRange,omitempty"`
}

// DataSetReaderConfig is a filter + sink matching inbound DataSetMessages
// (spec.md §3, §4.3).
type DataSetReaderConfig struct {
	Name string `json:"name"`

	// PublisherID/WriterGroupID/DataSetWriterID select the identity triple
	// this reader matches. Omitting PublisherID makes it a wildcard.
	PublisherID     string  `json:"publisherId,omitempty"`
	WriterGroupID   *uint16 `json:"writerGroupId,omitempty"`
	DataSetWriterID uint16  `json:"dataSetWriterId"`

	MessageReceiveTimeout string `json:"messageReceiveTimeout,omitempty"`

	// Metadata describes the wire shape of every field this reader expects,
	// positionally matching TargetVariables.
	Metadata []FieldConfig `json:"metadata"`

	// FieldContentMask must match the matched DataSetWriter's
	// fieldContentMask, since UADP's FieldEncodingDataValue wire shape isn't
	// self-describing. Same vocabulary as DataSetWriterConfig.FieldContentMask.
	FieldContentMask []string `json:"fieldContentMask,omitempty"`

	TargetVariables []TargetVariableConfig `json:"targetVariables"`
}
