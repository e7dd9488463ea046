package aprs

// DefaultIcon is reported for symbols without a dedicated mapping.
const DefaultIcon = "default"

// primaryIcons maps primary-table ('/') symbol codes to icon tags understood
// by the tracking platform UI.
var primaryIcons = map[string]string{
	"!": "police",
	"'": "plane",
	"-": "home",
	"<": "motorcycle",
	"=": "train",
	">": "car",
	"O": "balloon",
	"P": "police",
	"R": "rv",
	"U": "bus",
	"X": "helicopter",
	"Y": "sailboat",
	"[": "person",
	"^": "plane",
	"_": "weather",
	"a": "ambulance",
	"b": "bicycle",
	"f": "firetruck",
	"g": "glider",
	"j": "offroad",
	"k": "pickup",
	"r": "antenna",
	"s": "boat",
	"u": "truck",
	"v": "van",
}

// alternateIcons maps alternate-table ('\' or overlay) symbol codes. Sparse:
// most alternate symbols are infrastructure and fall back to DefaultIcon.
var alternateIcons = map[string]string{
	"#": "digipeater",
	"&": "igate",
	"_": "weather",
	"k": "suv",
	"s": "ship",
	"u": "truck",
	"v": "van",
}

// IconFor resolves a symbol table/code pair to an icon tag. Unknown symbols
// and empty fields resolve to DefaultIcon.
func IconFor(table, symbol string) string {
	if symbol == "" {
		return DefaultIcon
	}
	if table == "/" {
		if icon, ok := primaryIcons[symbol]; ok {
			return icon
		}
		return DefaultIcon
	}
	// Everything else (backslash table plus 0-9/A-Z overlays) uses the
	// alternate table.
	if icon, ok := alternateIcons[symbol]; ok {
		return icon
	}
	return DefaultIcon
}
