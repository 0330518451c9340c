package terminal

type commandGroup uint8

const (
	miscCmds commandGroup = iota
	viewCmds
	editCmds
	infoCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Navigating and viewing memory", viewCmds},
	{"Editing memory", editCmds},
	{"Viewing session state", infoCmds},
	{"Other commands", miscCmds},
}
