package signer

// State etapa del orquestador de firma.
type State int

const (
	StateInitialized State = iota
	StateSkeletonBuilt
	StatePropertiesAssembled
	StateKeyLoaded
	StateAnchorCreated
	StateCertificatesEmbedded
	StatePolicyDigestEmbedded
	StateSigned
	StateRelocated
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"Initialized",
	"SkeletonBuilt",
	"PropertiesAssembled",
	"KeyLoaded",
	"AnchorCreated",
	"CertificatesEmbedded",
	"PolicyDigestEmbedded",
	"Signed",
	"Relocated",
	"Done",
	"Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}
