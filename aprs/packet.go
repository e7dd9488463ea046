// Package aprs decodes APRS-IS position reports and maintains the feed
// connection. The parser covers the three position encodings seen on the
// network (uncompressed, compressed base-91, and mic-e) and normalizes the
// units: speed in km/h, altitude in meters, course in degrees.
package aprs

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Position report formats produced by ParsePacket.
const (
	FormatUncompressed = "uncompressed"
	FormatCompressed   = "compressed"
	FormatMicE         = "mic-e"
)

const (
	knotsToKMHFactor = 1.852
	feetToMeters     = 0.3048
)

// ErrNotPosition marks payloads that decode fine but are not position
// reports (messages, telemetry, status, objects).
var ErrNotPosition = errors.New("aprs: not a position report")

// altitudePattern matches the /A=nnnnnn comment extension (altitude in feet).
var altitudePattern = regexp.MustCompile(`/A=(-\d{5}|\d{6})`)

// Packet is one position report decoded from a raw feed line.
type Packet struct {
	Raw    string
	Src    string
	Dst    string
	Path   []string
	Via    string
	Format string

	Latitude  float64
	Longitude float64

	Ambiguity    int
	HasAmbiguity bool

	Altitude    float64 // meters
	HasAltitude bool
	Speed       float64 // km/h
	HasSpeed    bool
	Course      int // degrees
	HasCourse   bool

	SymbolTable string
	Symbol      string
	Comment     string
}

// ParsePacket decodes one raw feed line. Payload types other than position
// reports return ErrNotPosition; structurally broken lines return a plain
// error.
func ParsePacket(raw string) (*Packet, error) {
	head, body, ok := strings.Cut(raw, ":")
	if !ok || body == "" {
		return nil, fmt.Errorf("aprs: missing info field in %q", raw)
	}
	src, route, ok := strings.Cut(head, ">")
	if !ok || src == "" || route == "" {
		return nil, fmt.Errorf("aprs: malformed header in %q", raw)
	}
	tokens := strings.Split(route, ",")
	pkt := &Packet{
		Raw:  raw,
		Src:  src,
		Dst:  tokens[0],
		Path: tokens[1:],
	}
	if pkt.Dst == "" {
		return nil, fmt.Errorf("aprs: malformed header in %q", raw)
	}
	// The station after the q-construct is the igate that heard the packet.
	if n := len(pkt.Path); n >= 2 {
		if q := pkt.Path[n-2]; len(q) == 3 && q[0] == 'q' {
			pkt.Via = pkt.Path[n-1]
		}
	}

	var err error
	switch body[0] {
	case '!', '=':
		err = parsePosition(pkt, body[1:])
	case '/', '@':
		// Timestamped report: seven timestamp bytes precede the position.
		if len(body) < 9 {
			return nil, fmt.Errorf("aprs: short timestamped position in %q", raw)
		}
		err = parsePosition(pkt, body[8:])
	case '`', '\'', 0x1c, 0x1d:
		pkt.Format = FormatMicE
		err = parseMicE(pkt, body)
	default:
		return nil, ErrNotPosition
	}
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

func parsePosition(pkt *Packet, s string) error {
	if s == "" {
		return errors.New("aprs: empty position body")
	}
	// Uncompressed positions open with a latitude degree digit; compressed
	// ones open with the symbol table byte, which is never a digit.
	if s[0] >= '0' && s[0] <= '9' {
		pkt.Format = FormatUncompressed
		return parseUncompressed(pkt, s)
	}
	pkt.Format = FormatCompressed
	return parseCompressed(pkt, s)
}

// parseUncompressed handles the plain-text DDMM.mmN/DDDMM.mmW encoding with
// optional position ambiguity (trailing minute digits blanked) and the
// course/speed and altitude comment extensions.
func parseUncompressed(pkt *Packet, s string) error {
	if len(s) < 19 {
		return fmt.Errorf("aprs: short uncompressed position (%d bytes)", len(s))
	}
	lat, ambiguity, err := parseLatDM(s[0:8])
	if err != nil {
		return err
	}
	lon, err := parseLonDM(s[9:18])
	if err != nil {
		return err
	}
	table := s[8]
	if !validSymbolTable(table) {
		return fmt.Errorf("aprs: bad symbol table byte %q", table)
	}
	pkt.Latitude = lat
	pkt.Longitude = lon
	pkt.Ambiguity = ambiguity
	pkt.HasAmbiguity = true
	pkt.SymbolTable = string(table)
	pkt.Symbol = string(s[18])
	parseExtensions(pkt, s[19:])
	return nil
}

// parseLatDM decodes "DDMM.mmN" and counts blanked minute digits as
// position ambiguity.
func parseLatDM(s string) (float64, int, error) {
	if len(s) != 8 || s[4] != '.' {
		return 0, 0, fmt.Errorf("aprs: bad latitude field %q", s)
	}
	hemi := s[7]
	if hemi != 'N' && hemi != 'S' && hemi != 'n' && hemi != 's' {
		return 0, 0, fmt.Errorf("aprs: bad latitude hemisphere %q", hemi)
	}
	if !allDigits(s[0:2]) {
		return 0, 0, fmt.Errorf("aprs: bad latitude field %q", s)
	}
	ambiguity := strings.Count(s[2:4], " ") + strings.Count(s[5:7], " ")
	val, err := dmToDegrees(strings.ReplaceAll(s[0:4]+s[5:7], " ", "0"), 2)
	if err != nil || val > 90 {
		return 0, 0, fmt.Errorf("aprs: bad latitude field %q", s)
	}
	if hemi == 'S' || hemi == 's' {
		val = -val
	}
	return val, ambiguity, nil
}

// parseLonDM decodes "DDDMM.mmW". Longitude mirrors the latitude ambiguity,
// so blanks are zeroed without counting.
func parseLonDM(s string) (float64, error) {
	if len(s) != 9 || s[5] != '.' {
		return 0, fmt.Errorf("aprs: bad longitude field %q", s)
	}
	hemi := s[8]
	if hemi != 'E' && hemi != 'W' && hemi != 'e' && hemi != 'w' {
		return 0, fmt.Errorf("aprs: bad longitude hemisphere %q", hemi)
	}
	if !allDigits(s[0:3]) {
		return 0, fmt.Errorf("aprs: bad longitude field %q", s)
	}
	val, err := dmToDegrees(strings.ReplaceAll(s[0:5]+s[6:8], " ", "0"), 3)
	if err != nil || val > 180 {
		return 0, fmt.Errorf("aprs: bad longitude field %q", s)
	}
	if hemi == 'W' || hemi == 'w' {
		val = -val
	}
	return val, nil
}

// dmToDegrees converts concatenated degree/minute digits (degDigits degree
// digits, then minutes and hundredths) into decimal degrees.
func dmToDegrees(digits string, degDigits int) (float64, error) {
	deg, err := strconv.Atoi(digits[:degDigits])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(digits[degDigits : degDigits+2])
	if err != nil {
		return 0, err
	}
	hundredths, err := strconv.Atoi(digits[degDigits+2:])
	if err != nil {
		return 0, err
	}
	if minutes >= 60 {
		return 0, fmt.Errorf("aprs: minutes out of range in %q", digits)
	}
	return float64(deg) + (float64(minutes)+float64(hundredths)/100)/60, nil
}

// parseExtensions pulls the 7-byte course/speed data extension and the
// /A=nnnnnn altitude extension out of the comment text.
func parseExtensions(pkt *Packet, rest string) {
	if len(rest) >= 7 && rest[3] == '/' && allDigits(rest[0:3]) && allDigits(rest[4:7]) {
		course, _ := strconv.Atoi(rest[0:3])
		knots, _ := strconv.Atoi(rest[4:7])
		pkt.Course = course
		pkt.HasCourse = true
		pkt.Speed = knotsToKMH(float64(knots))
		pkt.HasSpeed = true
		rest = rest[7:]
	}
	if m := altitudePattern.FindStringIndex(rest); m != nil {
		feet, _ := strconv.Atoi(rest[m[0]+3 : m[1]])
		pkt.Altitude = float64(feet) * feetToMeters
		pkt.HasAltitude = true
		rest = rest[:m[0]] + rest[m[1]:]
	}
	pkt.Comment = strings.TrimSpace(rest)
}

// parseCompressed handles the 13-byte base-91 encoding. The trailing three
// bytes carry course/speed or GGA altitude depending on the compression
// type byte.
func parseCompressed(pkt *Packet, s string) error {
	if len(s) < 13 {
		return fmt.Errorf("aprs: short compressed position (%d bytes)", len(s))
	}
	table := s[0]
	if !validCompressedTable(table) {
		return fmt.Errorf("aprs: bad compressed symbol table %q", table)
	}
	latVal, err := base91Value(s[1:5])
	if err != nil {
		return err
	}
	lonVal, err := base91Value(s[5:9])
	if err != nil {
		return err
	}
	pkt.Latitude = 90 - float64(latVal)/380926
	pkt.Longitude = -180 + float64(lonVal)/190463
	if math.Abs(pkt.Latitude) > 90 || math.Abs(pkt.Longitude) > 180 {
		return fmt.Errorf("aprs: compressed position out of range (%f, %f)", pkt.Latitude, pkt.Longitude)
	}
	if table >= 'a' && table <= 'j' {
		table = table - 'a' + '0' // digit overlay
	}
	pkt.SymbolTable = string(table)
	pkt.Symbol = string(s[9])

	c, sp, ct := s[10], s[11], s[12]
	switch {
	case c == ' ':
		// no trailing data
	case c == '{':
		// pre-computed radio range, not carried
	case ct >= '!' && (ct-33)&0x18 == 0x10 && sp >= '!':
		// GGA source: altitude in feet as 1.002^(c*91+s)
		pkt.Altitude = math.Pow(1.002, float64(int(c-33)*91+int(sp-33))) * feetToMeters
		pkt.HasAltitude = true
	case c >= '!' && c <= 'z' && sp >= '!':
		pkt.Course = int(c-33) * 4
		pkt.HasCourse = true
		pkt.Speed = knotsToKMH(math.Pow(1.08, float64(sp-33)) - 1)
		pkt.HasSpeed = true
	}
	pkt.Comment = strings.TrimSpace(s[13:])
	return nil
}

// parseMicE decodes the mic-e encoding, which splits the position between
// the destination field (latitude digits, hemisphere, longitude offset) and
// the first nine info bytes (longitude, speed, course, symbol).
func parseMicE(pkt *Packet, body string) error {
	dest := pkt.Dst
	if i := strings.IndexByte(dest, '-'); i >= 0 {
		dest = dest[:i]
	}
	if len(dest) != 6 {
		return fmt.Errorf("aprs: mic-e destination %q", pkt.Dst)
	}
	if len(body) < 9 {
		return fmt.Errorf("aprs: short mic-e body (%d bytes)", len(body))
	}

	// The custom digit set A-J and the custom blank K are only valid in the
	// first three characters; the last three carry position flag bits.
	var digits [6]byte
	ambiguity := 0
	for i := 0; i < 6; i++ {
		switch c := dest[i]; {
		case c >= '0' && c <= '9':
			digits[i] = c
		case c >= 'A' && c <= 'J' && i < 3:
			digits[i] = c - 'A' + '0'
		case c >= 'P' && c <= 'Y':
			digits[i] = c - 'P' + '0'
		case (c == 'K' && i < 3) || c == 'L' || c == 'Z':
			digits[i] = '0'
			ambiguity++
		default:
			return fmt.Errorf("aprs: mic-e destination %q", pkt.Dst)
		}
	}
	// Characters 4-6 double as flag bits, set when drawn from P-Z: north
	// latitude, +100 degrees longitude, west longitude.
	north := dest[3] >= 'P'
	lonOffset := dest[4] >= 'P'
	west := dest[5] >= 'P'

	lat, err := dmToDegrees(string(digits[:]), 2)
	if err != nil || lat > 90 {
		return fmt.Errorf("aprs: mic-e latitude from %q", pkt.Dst)
	}
	if !north {
		lat = -lat
	}

	lonDeg := int(body[1]) - 28
	if lonOffset {
		lonDeg += 100
	}
	switch {
	case lonDeg >= 180 && lonDeg <= 189:
		lonDeg -= 80
	case lonDeg >= 190 && lonDeg <= 199:
		lonDeg -= 190
	}
	lonMin := int(body[2]) - 28
	if lonMin >= 60 {
		lonMin -= 60
	}
	lonHund := int(body[3]) - 28
	if lonDeg < 0 || lonDeg > 180 || lonMin < 0 || lonHund < 0 {
		return fmt.Errorf("aprs: mic-e longitude in %q", pkt.Raw)
	}
	lon := float64(lonDeg) + (float64(lonMin)+float64(lonHund)/100)/60
	if west {
		lon = -lon
	}

	speed := (int(body[4]) - 28) * 10
	dc := int(body[5]) - 28
	speed += dc / 10
	course := (dc%10)*100 + int(body[6]) - 28
	if speed >= 800 {
		speed -= 800
	}
	if course >= 400 {
		course -= 400
	}
	if speed >= 0 && course >= 0 {
		pkt.Speed = knotsToKMH(float64(speed))
		pkt.HasSpeed = true
		pkt.Course = course
		pkt.HasCourse = true
	}

	pkt.Latitude = lat
	pkt.Longitude = lon
	pkt.Ambiguity = ambiguity
	pkt.HasAmbiguity = true
	pkt.Symbol = string(body[7])
	pkt.SymbolTable = string(body[8])

	rest := body[9:]
	// Optional altitude: three base-91 bytes then '}', meters offset by 10km.
	if len(rest) >= 4 && rest[3] == '}' {
		if v, err := base91Value(rest[:3]); err == nil {
			pkt.Altitude = float64(v - 10000)
			pkt.HasAltitude = true
			rest = rest[4:]
		}
	}
	pkt.Comment = strings.TrimSpace(rest)
	return nil
}

func base91Value(s string) (int, error) {
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '!' || c > '}' {
			return 0, fmt.Errorf("aprs: base91 byte %q out of range", c)
		}
		v = v*91 + int(c-33)
	}
	return v, nil
}

func knotsToKMH(knots float64) float64 {
	return math.Round(knots*knotsToKMHFactor*10) / 10
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validSymbolTable(c byte) bool {
	return c == '/' || c == '\\' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z')
}

func validCompressedTable(c byte) bool {
	return c == '/' || c == '\\' || (c >= 'a' && c <= 'j') || (c >= 'A' && c <= 'Z')
}
