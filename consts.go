package hotswap

const (
	emptyString = ""

	metaInfDescriptor   = "META-INF/beans.xml"
	webInfDescriptor    = "WEB-INF/beans.xml"
	webInfClasses       = "WEB-INF/classes"
	nestedArchiveSuffix = ".jar!/"
	nestedArchiveMarker = "!/"

	defaultFingerprintCacheSize = 512
)

// Tag is a struct tag key understood by the container and the comparator.
type Tag string

const (
	TagInject    Tag = "di.inject"    // field injection point; value is the dependency bean id
	TagScope     Tag = "di.scope"     // read from a blank marker field
	TagName      Tag = "di.name"      // read from a blank marker field
	TagQualifier Tag = "di.qualifier" // comma separated, read from a blank marker field
	TagExpose    Tag = "di.expose"    // comma separated interface class names, read from a blank marker field
	TagKind      Tag = "di.kind"      // "session" marks a session bean
)
