package seed

// File is the top-level structure of a seed file.
type File struct {
	Facilities []FacilitySpec `yaml:"facilities"`
}

// FacilitySpec describes one facility and the time it is open for booking.
type FacilitySpec struct {
	Name    string     `yaml:"name"`
	Slots   []SlotSpec `yaml:"slots,omitempty"`
	OpenAll bool       `yaml:"open_all,omitempty"` // whole operating window, every day
}

// SlotSpec is a bookable range. Times are "HH:MM" or "HHMM" and must fall on
// 30-minute boundaries.
type SlotSpec struct {
	Day  string `yaml:"day"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}
