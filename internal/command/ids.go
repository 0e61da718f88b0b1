// internal/command/ids.go
package command

// ID identifies a command between the router and an automation worker.
// Values are only stable within one running process and are never sent on
// the wire.
type ID int

const (
	Invalid ID = iota

	// -- Session --
	NewSession
	Quit
	GetSessionCapabilities

	// -- Navigation --
	Get
	GetCurrentURL
	GoBack
	GoForward
	Refresh

	// -- Document and window queries --
	GetTitle
	GetPageSource

	// -- Element queries --
	FindElement
	FindElements
	FindChildElement
	FindChildElements
	GetActiveElement
	GetElementText
	GetElementTagName
	GetElementAttribute
	IsElementSelected
	IsElementEnabled
	IsElementDisplayed
	GetElementLocation
	GetElementSize
	GetElementCSSValue
	ElementEquals

	// -- Element actions --
	ClickElement
	SubmitElement
	ClearElement
	SendKeysToElement

	// -- Cookies --
	GetAllCookies
	AddCookie
	DeleteAllCookies
	DeleteCookie

	// -- Frame and window switching --
	SwitchToFrame
	SwitchToParentFrame
	SwitchToWindow
	GetWindowHandle
	GetWindowHandles
	CloseWindow

	// -- Script execution --
	ExecuteScript
	ExecuteAsyncScript

	// -- Session state --
	SetTimeouts
	ImplicitlyWait
	SetScriptTimeout
	GetSpeed
	SetSpeed

	numIDs
)

// Group classifies commands for logging and metrics.
type Group string

const (
	GroupSession    Group = "session"
	GroupNavigation Group = "navigation"
	GroupDocument   Group = "document"
	GroupElement    Group = "element"
	GroupAction     Group = "action"
	GroupCookie     Group = "cookie"
	GroupSwitching  Group = "switching"
	GroupScript     Group = "script"
	GroupState      Group = "state"
)

// Spec is the static description of one catalog entry.
type Spec struct {
	Name  string
	Group Group
	// Lifecycle commands are handled by the router itself and never reach a
	// worker's channel.
	Lifecycle bool
}

var catalog = [numIDs]Spec{
	Invalid: {Name: "invalid"},

	NewSession:             {Name: "newSession", Group: GroupSession, Lifecycle: true},
	Quit:                   {Name: "quit", Group: GroupSession, Lifecycle: true},
	GetSessionCapabilities: {Name: "getSessionCapabilities", Group: GroupSession},

	Get:           {Name: "get", Group: GroupNavigation},
	GetCurrentURL: {Name: "getCurrentUrl", Group: GroupNavigation},
	GoBack:        {Name: "goBack", Group: GroupNavigation},
	GoForward:     {Name: "goForward", Group: GroupNavigation},
	Refresh:       {Name: "refresh", Group: GroupNavigation},

	GetTitle:      {Name: "getTitle", Group: GroupDocument},
	GetPageSource: {Name: "getPageSource", Group: GroupDocument},

	FindElement:         {Name: "findElement", Group: GroupElement},
	FindElements:        {Name: "findElements", Group: GroupElement},
	FindChildElement:    {Name: "findChildElement", Group: GroupElement},
	FindChildElements:   {Name: "findChildElements", Group: GroupElement},
	GetActiveElement:    {Name: "getActiveElement", Group: GroupElement},
	GetElementText:      {Name: "getElementText", Group: GroupElement},
	GetElementTagName:   {Name: "getElementTagName", Group: GroupElement},
	GetElementAttribute: {Name: "getElementAttribute", Group: GroupElement},
	IsElementSelected:   {Name: "isElementSelected", Group: GroupElement},
	IsElementEnabled:    {Name: "isElementEnabled", Group: GroupElement},
	IsElementDisplayed:  {Name: "isElementDisplayed", Group: GroupElement},
	GetElementLocation:  {Name: "getElementLocation", Group: GroupElement},
	GetElementSize:      {Name: "getElementSize", Group: GroupElement},
	GetElementCSSValue:  {Name: "getElementValueOfCssProperty", Group: GroupElement},
	ElementEquals:       {Name: "elementEquals", Group: GroupElement},

	ClickElement:      {Name: "clickElement", Group: GroupAction},
	SubmitElement:     {Name: "submitElement", Group: GroupAction},
	ClearElement:      {Name: "clearElement", Group: GroupAction},
	SendKeysToElement: {Name: "sendKeysToElement", Group: GroupAction},

	GetAllCookies:    {Name: "getCookies", Group: GroupCookie},
	AddCookie:        {Name: "addCookie", Group: GroupCookie},
	DeleteAllCookies: {Name: "deleteAllCookies", Group: GroupCookie},
	DeleteCookie:     {Name: "deleteCookie", Group: GroupCookie},

	SwitchToFrame:       {Name: "switchToFrame", Group: GroupSwitching},
	SwitchToParentFrame: {Name: "switchToParentFrame", Group: GroupSwitching},
	SwitchToWindow:      {Name: "switchToWindow", Group: GroupSwitching},
	GetWindowHandle:     {Name: "getCurrentWindowHandle", Group: GroupSwitching},
	GetWindowHandles:    {Name: "getWindowHandles", Group: GroupSwitching},
	CloseWindow:         {Name: "closeWindow", Group: GroupSwitching},

	ExecuteScript:      {Name: "executeScript", Group: GroupScript},
	ExecuteAsyncScript: {Name: "executeAsyncScript", Group: GroupScript},

	SetTimeouts:      {Name: "setTimeouts", Group: GroupState},
	ImplicitlyWait:   {Name: "implicitlyWait", Group: GroupState},
	SetScriptTimeout: {Name: "setScriptTimeout", Group: GroupState},
	GetSpeed:         {Name: "getSpeed", Group: GroupState},
	SetSpeed:         {Name: "setSpeed", Group: GroupState},
}

// Valid reports whether id names a catalog entry.
func (id ID) Valid() bool { return id > Invalid && id < numIDs }

// Spec returns the static description of id.
func (id ID) Spec() Spec {
	if id < 0 || id >= numIDs {
		return catalog[Invalid]
	}
	return catalog[id]
}

func (id ID) String() string { return id.Spec().Name }

// All returns every valid command id in catalog order.
func All() []ID {
	ids := make([]ID, 0, numIDs-1)
	for id := Invalid + 1; id < numIDs; id++ {
		ids = append(ids, id)
	}
	return ids
}
