package sealevel

const (
	CUSystemProgramDefaultComputeUnits = 150
	CUDefaultLoaderComputeUnits        = 570
	CUUpgradeableLoaderComputeUnits    = 2370
)
