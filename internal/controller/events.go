package controller

// Outbound event topics.
const (
	TopicStateUpdate         = "state-update"
	TopicNotification        = "notification-message"
	TopicDiscoveredAddresses = "discovered-addresses"
	TopicCloudLogin          = "cloud-login"
	TopicCloudDevices        = "cloud-devices"
	TopicRemoteConfiguration = "remote-configuration-loaded"
	TopicSavedPreferences    = "saved-preferences"
)

// Notification keys, translated by the UI.
const (
	NotifyConnected             = "Connesso"
	NotifyConnectionFailed      = "ConnessioneFallita"
	NotifyInvalidCredentials    = "CredenzialiNonValide"
	NotifyNetworkError          = "ErroreDiRete"
	NotifyConfigurationUploaded = "ConfigurazioneCaricata"
	NotifyUploadFailed          = "NonSonoRiuscitoACaricareLaConfigurazione"
	NotifyConfigurationLoaded   = "ConfigurazioneScaricata"
	NotifyDownloadFailed        = "NonSonoRiuscitoAScaricareLaConfigurazione"
	NotifySuccess               = "Successo"
	NotifyFailure               = "Fallimento"
	NotifyNoConnection          = "NessunaConnessione"
	NotifyInvalidCommand        = "ComandoNonValido"
	NotifyPreferencesSaved      = "PreferenzeSalvate"
)

// Preference keys.
const (
	PrefLanguage    = "language"
	PrefMachineKind = "machine-kind"
	PrefCloudToken  = "cloud-token"
)

// Emitter delivers events to the UI. The controller loop is its only caller.
type Emitter interface {
	Emit(topic string, payload any)
}

// SavedPreferences is the payload of TopicSavedPreferences.
type SavedPreferences struct {
	Language    string `json:"language"`
	MachineKind string `json:"machine_kind"`
}
