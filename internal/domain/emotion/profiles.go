package emotion

// Profile carries the caregiver-facing presentation for a label: a display
// color, a one-line cue describing what the mood sounds like, and concrete
// caregiving suggestions. The table is total over the label set; tests
// assert every label has an entry.
type Profile struct {
	Label       Label    `json:"label"`
	Color       string   `json:"color"`
	Cue         string   `json:"cue"`
	Suggestions []string `json:"suggestions"`
}

var profiles = map[Label]Profile{
	Calm: {
		Label: Calm,
		Color: "#4ade80",
		Cue:   "Soft, even vocal tone with relaxed pacing.",
		Suggestions: []string{
			"Keep the current routine going; it is working.",
			"A good moment for quiet play or reading together.",
			"Note what preceded this mood so you can repeat it.",
		},
	},
	Stressed: {
		Label: Stressed,
		Color: "#f87171",
		Cue:   "Tense, strained vocal tone with sharp bursts.",
		Suggestions: []string{
			"Move to a quieter space and lower stimulation.",
			"Offer comfort: holding, rocking, or a familiar object.",
			"Check basics first: hunger, sleep, temperature, discomfort.",
		},
	},
	Excited: {
		Label: Excited,
		Color: "#facc15",
		Cue:   "High-energy vocal tone with quick, animated bursts.",
		Suggestions: []string{
			"Channel the energy into active play.",
			"Start winding down early if bedtime is near.",
			"Join in; shared excitement builds connection.",
		},
	},
	Neutral: {
		Label: Neutral,
		Color: "#94a3b8",
		Cue:   "Flat, steady vocal tone without strong peaks.",
		Suggestions: []string{
			"No action needed; keep observing.",
			"Try engaging with a favorite song or toy.",
			"Re-record a longer clip if the mood seems unclear.",
		},
	},
}

// ProfileFor returns the presentation profile for a label. The table is
// total, so the second return is false only for labels outside the set.
func ProfileFor(l Label) (Profile, bool) {
	p, ok := profiles[l]
	return p, ok
}

// Profiles returns all profiles in canonical label order.
func Profiles() []Profile {
	out := make([]Profile, 0, len(labels))
	for _, l := range labels {
		out = append(out, profiles[l])
	}
	return out
}
