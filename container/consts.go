package container

import "github.com/Station-Manager/hotswap"

const (
	emptyString = ""
	pathSep     = " -> "
	blankField  = "_"

	applicationContextID = "application"
	requestContextPrefix = "request-"
	sessionContextPrefix = "session-"

	kindSession = "session"
)

const (
	inject       = hotswap.TagInject // di.inject is the tag for field injection. The field MUST be exported.
	scopeTag     = hotswap.TagScope
	nameTag      = hotswap.TagName
	qualifierTag = hotswap.TagQualifier
	exposeTag    = hotswap.TagExpose
	kindTag      = hotswap.TagKind
)
