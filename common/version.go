package common

// v0.1.0 - initial version

const Version = "0.1.0"
