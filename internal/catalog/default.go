package catalog

import "github.com/example/slotledger/internal/timewindow"

// Default returns the production catalog: one crew, weekday open 09:00 and
// weekend open 10:00, 15-minute buffer between jobs, at most 30 minutes of
// overrun past nominal close.
func Default() *Catalog {
	return New(defaultServices, defaultAddons, defaultFamilies)
}

var defaultServices = []Service{
	{Key: "exterior", Name: "Exterior Wash & Wax", Minutes: 75, Visits: 1, CreditType: "exterior"},
	{Key: "interior", Name: "Interior Deep Clean", Minutes: 90, Visits: 1, CreditType: "interior"},
	{Key: "full-detail", Name: "Full Detail", Minutes: 120, Visits: 1, CreditType: "full-detail"},
	{Key: "exterior-monthly", Name: "Exterior Monthly Membership", Visits: 4, PerVisit: "exterior", CreditType: "exterior"},
}

var defaultAddons = []Addon{
	{Key: "pet-hair", Name: "Pet Hair Removal", ExtraMinutes: 30},
	{Key: "engine-bay", Name: "Engine Bay Rinse", ExtraMinutes: 0},
	{Key: "sealant", Name: "Paint Sealant", ExtraMinutes: 30},
}

func lt(s string) timewindow.LocalTime {
	v, err := timewindow.ParseLocalTime(s)
	if err != nil {
		panic(err)
	}
	return v
}

var defaultFamilies = []Family{
	{Name: "wd-75x5", Day: timewindow.Weekday, Jobs: []Job{
		{lt("09:00"), 75}, {lt("10:30"), 75}, {lt("12:00"), 75}, {lt("13:30"), 75}, {lt("15:00"), 75},
	}},
	{Name: "wd-90x4", Day: timewindow.Weekday, Jobs: []Job{
		{lt("09:00"), 90}, {lt("10:45"), 90}, {lt("12:30"), 90}, {lt("14:15"), 90},
	}},
	{Name: "wd-105x4", Day: timewindow.Weekday, Jobs: []Job{
		{lt("09:00"), 105}, {lt("11:00"), 105}, {lt("13:00"), 105}, {lt("15:00"), 105},
	}},
	{Name: "wd-120x3", Day: timewindow.Weekday, Jobs: []Job{
		{lt("09:00"), 120}, {lt("11:15"), 120}, {lt("13:30"), 120},
	}},
	{Name: "wd-150x2", Day: timewindow.Weekday, Jobs: []Job{
		{lt("09:00"), 150}, {lt("12:00"), 150},
	}},
	{Name: "wd-split", Day: timewindow.Weekday, Jobs: []Job{
		{lt("09:00"), 120}, {lt("11:30"), 75}, {lt("13:00"), 75}, {lt("14:30"), 75},
	}},

	{Name: "we-75x3", Day: timewindow.Weekend, Jobs: []Job{
		{lt("10:00"), 75}, {lt("11:30"), 75}, {lt("13:00"), 75},
	}},
	{Name: "we-90x3", Day: timewindow.Weekend, Jobs: []Job{
		{lt("10:00"), 90}, {lt("11:45"), 90}, {lt("13:30"), 90},
	}},
	{Name: "we-105x2", Day: timewindow.Weekend, Jobs: []Job{
		{lt("10:00"), 105}, {lt("12:00"), 105},
	}},
	{Name: "we-120x2", Day: timewindow.Weekend, Jobs: []Job{
		{lt("10:00"), 120}, {lt("12:15"), 120},
	}},
	{Name: "we-150x1", Day: timewindow.Weekend, Jobs: []Job{
		{lt("10:00"), 150},
	}},
	{Name: "we-split", Day: timewindow.Weekend, Jobs: []Job{
		{lt("10:00"), 120}, {lt("12:30"), 75}, {lt("14:00"), 75},
	}},
}
