package wsjtx

// Heartbeat (type 0) is sent by every client roughly every 15 seconds.
type Heartbeat struct {
	Header    Header
	ID        string
	MaxSchema uint32
	Version   string
	Revision  string
}

// Status (type 1) is a snapshot of the client's state. Fields after DXGrid
// were added in later schema revisions and may be absent.
type Status struct {
	Header        Header `json:"-"`
	ID            string `json:"id"`
	DialFrequency uint64 `json:"dial_frequency"`  // Hz
	Mode          string `json:"mode"`
	DXCall        string `json:"dx_call"`
	Report        string `json:"report"`
	TxMode        string `json:"tx_mode"`
	TxEnabled     bool   `json:"tx_enabled"`
	Transmitting  bool   `json:"transmitting"`
	Decoding      bool   `json:"decoding"`
	RxDF          uint32 `json:"rx_df"`
	TxDF          uint32 `json:"tx_df"`
	DECall        string `json:"de_call"`
	DEGrid        string `json:"de_grid"`
	DXGrid        string `json:"dx_grid"`
	TxWatchdog    bool   `json:"tx_watchdog"`
	SubMode       string `json:"sub_mode"`
	FastMode      bool   `json:"fast_mode"`
	SpecialOpMode uint8  `json:"special_op_mode"`
	FreqTolerance uint32 `json:"freq_tolerance"`
	TRPeriod      uint32 `json:"tr_period"`
	ConfigName    string `json:"config_name"`
	TxMessage     string `json:"tx_message"`
}

// Decode (type 2) is one decoded transmission.
type Decode struct {
	Header        Header  `json:"-"`
	ID            string  `json:"id"`
	New           bool    `json:"new"`
	Time          uint32  `json:"time"`           // ms since midnight UTC
	SNR           int32   `json:"snr"`
	DeltaTime     float64 `json:"delta_time"`     // s
	DeltaFreq     uint32  `json:"delta_freq"`     // Hz
	RawMode       string  `json:"raw_mode"`       // symbol as sent on the wire, e.g. "~"
	Mode          string  `json:"mode"`           // normalized name, e.g. "FT8"
	Message       string  `json:"message"`
	LowConfidence bool    `json:"low_confidence"`
	OffAir        bool    `json:"off_air"`
}

// Reply (type 4) asks the client to answer a decode as if the operator had
// double clicked it.
type Reply struct {
	Header        Header
	ID            string
	Time          uint32
	SNR           int32
	DeltaTime     float64
	DeltaFreq     uint32
	Mode          string
	Message       string
	LowConfidence bool
	Modifiers     uint8
}

// HaltTx (type 8) stops transmission. With AutoTxOnly set only auto
// sequencing is disabled and the current transmission completes.
type HaltTx struct {
	Header     Header
	ID         string
	AutoTxOnly bool
}

// LoggedADIF (type 12) carries the ADIF text of a contact the operator logged.
type LoggedADIF struct {
	Header Header
	ID     string
	ADIF   string
}

// ReplyTo builds the Reply for a decode, echoing its timing fields and raw
// mode symbol under the sender's own magic, schema and id.
func ReplyTo(d *Decode) *Reply {
	mode := d.RawMode
	if mode == "" {
		mode = d.Mode
	}
	return &Reply{
		Header:        d.Header,
		ID:            d.ID,
		Time:          d.Time,
		SNR:           d.SNR,
		DeltaTime:     d.DeltaTime,
		DeltaFreq:     d.DeltaFreq,
		Mode:          mode,
		Message:       d.Message,
		LowConfidence: d.LowConfidence,
	}
}

// DecodeHeartbeat decodes a type 0 message.
func (d *Decoder) DecodeHeartbeat(b []byte) (*Heartbeat, error) {
	h, r, id, err := d.body(b, TypeHeartbeat)
	if err != nil {
		return nil, err
	}
	hb := &Heartbeat{Header: h, ID: id}
	if hb.MaxSchema, err = r.u32("max schema"); err != nil {
		return nil, err
	}
	if r.remaining() == 0 {
		return hb, nil
	}
	if hb.Version, err = r.str("version"); err != nil {
		return nil, err
	}
	if r.remaining() == 0 {
		return hb, nil
	}
	if hb.Revision, err = r.str("revision"); err != nil {
		return nil, err
	}
	return hb, nil
}

// DecodeStatus decodes a type 1 message.
func (d *Decoder) DecodeStatus(b []byte) (*Status, error) {
	h, r, id, err := d.body(b, TypeStatus)
	if err != nil {
		return nil, err
	}
	s := &Status{Header: h, ID: id}

	if s.DialFrequency, err = r.u64("dial frequency"); err != nil {
		return nil, err
	}
	if s.Mode, err = r.str("mode"); err != nil {
		return nil, err
	}
	if s.Mode == "" {
		s.Mode = d.DefaultMode
	}
	if s.DXCall, err = r.str("dx call"); err != nil {
		return nil, err
	}
	if s.Report, err = r.str("report"); err != nil {
		return nil, err
	}
	if s.TxMode, err = r.str("tx mode"); err != nil {
		return nil, err
	}
	if s.TxEnabled, err = r.boolean("tx enabled"); err != nil {
		return nil, err
	}
	if s.Transmitting, err = r.boolean("transmitting"); err != nil {
		return nil, err
	}
	if s.Decoding, err = r.boolean("decoding"); err != nil {
		return nil, err
	}
	if s.RxDF, err = r.u32("rx df"); err != nil {
		return nil, err
	}
	if s.TxDF, err = r.u32("tx df"); err != nil {
		return nil, err
	}
	if s.DECall, err = r.str("de call"); err != nil {
		return nil, err
	}
	if s.DEGrid, err = r.str("de grid"); err != nil {
		return nil, err
	}
	if s.DXGrid, err = r.str("dx grid"); err != nil {
		return nil, err
	}

	// Optional trailer. Each field is read only if bytes remain; a field
	// that starts but does not fit is still an overrun.
	optional := []func() error{
		func() (err error) { s.TxWatchdog, err = r.boolean("tx watchdog"); return },
		func() (err error) { s.SubMode, err = r.str("sub mode"); return },
		func() (err error) { s.FastMode, err = r.boolean("fast mode"); return },
		func() (err error) { s.SpecialOpMode, err = r.u8("special operation mode"); return },
		func() (err error) { s.FreqTolerance, err = r.u32("frequency tolerance"); return },
		func() (err error) { s.TRPeriod, err = r.u32("tr period"); return },
		func() (err error) { s.ConfigName, err = r.str("configuration name"); return },
		func() (err error) { s.TxMessage, err = r.str("tx message"); return },
	}
	for _, read := range optional {
		if r.remaining() == 0 {
			break
		}
		if err := read(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DecodeDecode decodes a type 2 message.
func (d *Decoder) DecodeDecode(b []byte) (*Decode, error) {
	h, r, id, err := d.body(b, TypeDecode)
	if err != nil {
		return nil, err
	}
	m := &Decode{Header: h, ID: id}

	if m.New, err = r.boolean("new"); err != nil {
		return nil, err
	}
	if m.Time, err = r.u32("time"); err != nil {
		return nil, err
	}
	if m.SNR, err = r.i32("snr"); err != nil {
		return nil, err
	}
	if m.DeltaTime, err = r.f64("delta time"); err != nil {
		return nil, err
	}
	if m.DeltaFreq, err = r.u32("delta frequency"); err != nil {
		return nil, err
	}
	if m.RawMode, err = r.str("mode"); err != nil {
		return nil, err
	}
	if m.Message, err = r.str("message"); err != nil {
		return nil, err
	}
	if r.remaining() > 0 {
		if m.LowConfidence, err = r.boolean("low confidence"); err != nil {
			return nil, err
		}
	}
	if r.remaining() > 0 {
		if m.OffAir, err = r.boolean("off air"); err != nil {
			return nil, err
		}
	}

	m.Mode = ModeName(m.RawMode)
	if m.Mode == "" {
		m.Mode = d.DefaultMode
	}
	return m, nil
}

// DecodeReply decodes a type 4 message.
func (d *Decoder) DecodeReply(b []byte) (*Reply, error) {
	h, r, id, err := d.body(b, TypeReply)
	if err != nil {
		return nil, err
	}
	m := &Reply{Header: h, ID: id}
	if m.Time, err = r.u32("time"); err != nil {
		return nil, err
	}
	if m.SNR, err = r.i32("snr"); err != nil {
		return nil, err
	}
	if m.DeltaTime, err = r.f64("delta time"); err != nil {
		return nil, err
	}
	if m.DeltaFreq, err = r.u32("delta frequency"); err != nil {
		return nil, err
	}
	if m.Mode, err = r.str("mode"); err != nil {
		return nil, err
	}
	if m.Message, err = r.str("message"); err != nil {
		return nil, err
	}
	if m.LowConfidence, err = r.boolean("low confidence"); err != nil {
		return nil, err
	}
	if r.remaining() > 0 {
		if m.Modifiers, err = r.u8("modifiers"); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DecodeHaltTx decodes a type 8 message.
func (d *Decoder) DecodeHaltTx(b []byte) (*HaltTx, error) {
	h, r, id, err := d.body(b, TypeHaltTx)
	if err != nil {
		return nil, err
	}
	m := &HaltTx{Header: h, ID: id}
	if m.AutoTxOnly, err = r.boolean("auto tx only"); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeLoggedADIF decodes a type 12 message.
func (d *Decoder) DecodeLoggedADIF(b []byte) (*LoggedADIF, error) {
	h, r, id, err := d.body(b, TypeLoggedADIF)
	if err != nil {
		return nil, err
	}
	m := &LoggedADIF{Header: h, ID: id}
	if m.ADIF, err = r.str("adif"); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeHeartbeat encodes a type 0 message.
func EncodeHeartbeat(m *Heartbeat) []byte {
	var w writer
	w.header(m.Header, TypeHeartbeat, m.ID)
	w.uint32(m.MaxSchema)
	w.string(m.Version)
	w.string(m.Revision)
	return w.bytes()
}

// EncodeStatus encodes a type 1 message with every optional field present.
func EncodeStatus(m *Status) []byte {
	var w writer
	w.header(m.Header, TypeStatus, m.ID)
	w.uint64(m.DialFrequency)
	w.string(m.Mode)
	w.string(m.DXCall)
	w.string(m.Report)
	w.string(m.TxMode)
	w.bool(m.TxEnabled)
	w.bool(m.Transmitting)
	w.bool(m.Decoding)
	w.uint32(m.RxDF)
	w.uint32(m.TxDF)
	w.string(m.DECall)
	w.string(m.DEGrid)
	w.string(m.DXGrid)
	w.bool(m.TxWatchdog)
	w.string(m.SubMode)
	w.bool(m.FastMode)
	w.uint8(m.SpecialOpMode)
	w.uint32(m.FreqTolerance)
	w.uint32(m.TRPeriod)
	w.string(m.ConfigName)
	w.string(m.TxMessage)
	return w.bytes()
}

// EncodeDecode encodes a type 2 message. The raw mode symbol is written when
// known, otherwise the mode name.
func EncodeDecode(m *Decode) []byte {
	mode := m.RawMode
	if mode == "" {
		mode = m.Mode
	}
	var w writer
	w.header(m.Header, TypeDecode, m.ID)
	w.bool(m.New)
	w.uint32(m.Time)
	w.int32(m.SNR)
	w.double(m.DeltaTime)
	w.uint32(m.DeltaFreq)
	w.string(mode)
	w.string(m.Message)
	w.bool(m.LowConfidence)
	w.bool(m.OffAir)
	return w.bytes()
}

// EncodeReply encodes a type 4 message.
func EncodeReply(m *Reply) []byte {
	var w writer
	w.header(m.Header, TypeReply, m.ID)
	w.uint32(m.Time)
	w.int32(m.SNR)
	w.double(m.DeltaTime)
	w.uint32(m.DeltaFreq)
	w.string(m.Mode)
	w.string(m.Message)
	w.bool(m.LowConfidence)
	w.uint8(m.Modifiers)
	return w.bytes()
}

// EncodeHaltTx encodes a type 8 message.
func EncodeHaltTx(m *HaltTx) []byte {
	var w writer
	w.header(m.Header, TypeHaltTx, m.ID)
	w.bool(m.AutoTxOnly)
	return w.bytes()
}

// EncodeLoggedADIF encodes a type 12 message.
func EncodeLoggedADIF(m *LoggedADIF) []byte {
	var w writer
	w.header(m.Header, TypeLoggedADIF, m.ID)
	w.string(m.ADIF)
	return w.bytes()
}
