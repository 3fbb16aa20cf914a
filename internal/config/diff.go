package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	CharactersChanged bool            // true if any character trait, voice, or instructions changed
	CharacterChanges  []CharacterDiff // per-character diffs
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	LiveVoiceChanged  bool
	NewLiveVoice      string
}

// CharacterDiff describes what changed for a single character between two
// configs.
type CharacterDiff struct {
	Name                string
	TraitsChanged       bool
	VoiceChanged        bool
	InstructionsChanged bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Default live voice
	if old.Providers.Live.Voice != new.Providers.Live.Voice {
		d.LiveVoiceChanged = true
		d.NewLiveVoice = new.Providers.Live.Voice
	}

	// Build character lookup maps keyed by name.
	oldChars := make(map[string]*CharacterConfig, len(old.Characters))
	for i := range old.Characters {
		oldChars[old.Characters[i].Name] = &old.Characters[i]
	}
	newChars := make(map[string]*CharacterConfig, len(new.Characters))
	for i := range new.Characters {
		newChars[new.Characters[i].Name] = &new.Characters[i]
	}

	// Changed and removed characters.
	for name, oc := range oldChars {
		nc, ok := newChars[name]
		if !ok {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{Name: name, Removed: true})
			d.CharactersChanged = true
			continue
		}

		cd := CharacterDiff{Name: name}
		if oc.Gender != nc.Gender || oc.Age != nc.Age {
			cd.TraitsChanged = true
		}
		if oc.Voice != nc.Voice {
			cd.VoiceChanged = true
		}
		if oc.Instructions != nc.Instructions {
			cd.InstructionsChanged = true
		}
		if cd.TraitsChanged || cd.VoiceChanged || cd.InstructionsChanged {
			d.CharacterChanges = append(d.CharacterChanges, cd)
			d.CharactersChanged = true
		}
	}

	// Added characters.
	for name := range newChars {
		if _, ok := oldChars[name]; !ok {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{Name: name, Added: true})
			d.CharactersChanged = true
		}
	}

	return d
}
