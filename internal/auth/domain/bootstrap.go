package domain

// BootstrapData describes the first owner account of an empty installation.
type BootstrapData struct {
	Email       string
	DisplayName string
	Password    string
}
