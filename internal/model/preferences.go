package model

// Preferences are the global alarm settings applied to every scheduled dose.
type Preferences struct {
	SoundEnabled        bool `json:"sound"`
	ToneID              int  `json:"toneId" validate:"min=1,max=4"`
	VibrationEnabled    bool `json:"vibration"`
	VisualBannerEnabled bool `json:"visualBanner"`
	Volume              int  `json:"volume" validate:"min=0,max=100"`
}

// DefaultPreferences apply whenever nothing has been stored yet.
func DefaultPreferences() Preferences {
	return Preferences{
		SoundEnabled:        true,
		ToneID:              1,
		VibrationEnabled:    true,
		VisualBannerEnabled: true,
		Volume:              80,
	}
}

// UpdatePreferencesRequest is a partial update; nil fields keep their value.
type UpdatePreferencesRequest struct {
	SoundEnabled        *bool `json:"sound"`
	ToneID              *int  `json:"toneId" binding:"omitempty,min=1,max=4"`
	VibrationEnabled    *bool `json:"vibration"`
	VisualBannerEnabled *bool `json:"visualBanner"`
	Volume              *int  `json:"volume" binding:"omitempty,min=0,max=100"`
}

// Apply returns p with the request's non-nil fields applied.
func (r *UpdatePreferencesRequest) Apply(p Preferences) Preferences {
	if r.SoundEnabled != nil {
		p.SoundEnabled = *r.SoundEnabled
	}
	if r.ToneID != nil {
		p.ToneID = *r.ToneID
	}
	if r.VibrationEnabled != nil {
		p.VibrationEnabled = *r.VibrationEnabled
	}
	if r.VisualBannerEnabled != nil {
		p.VisualBannerEnabled = *r.VisualBannerEnabled
	}
	if r.Volume != nil {
		p.Volume = *r.Volume
	}
	return p
}
