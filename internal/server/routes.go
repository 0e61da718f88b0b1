// internal/server/routes.go
package server

import (
	"net/http"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

// Route binds a verb and URL template to a catalog command.
type Route struct {
	Method  string
	Pattern string
	Command command.ID
}

var routes = []Route{
	{http.MethodPost, "/session", command.NewSession},
	{http.MethodGet, "/session/{sessionId}", command.GetSessionCapabilities},
	{http.MethodDelete, "/session/{sessionId}", command.Quit},

	{http.MethodPost, "/session/{sessionId}/url", command.Get},
	{http.MethodGet, "/session/{sessionId}/url", command.GetCurrentURL},
	{http.MethodPost, "/session/{sessionId}/back", command.GoBack},
	{http.MethodPost, "/session/{sessionId}/forward", command.GoForward},
	{http.MethodPost, "/session/{sessionId}/refresh", command.Refresh},

	{http.MethodGet, "/session/{sessionId}/title", command.GetTitle},
	{http.MethodGet, "/session/{sessionId}/source", command.GetPageSource},

	{http.MethodPost, "/session/{sessionId}/element", command.FindElement},
	{http.MethodPost, "/session/{sessionId}/elements", command.FindElements},
	{http.MethodPost, "/session/{sessionId}/element/active", command.GetActiveElement},
	{http.MethodPost, "/session/{sessionId}/element/{id}/element", command.FindChildElement},
	{http.MethodPost, "/session/{sessionId}/element/{id}/elements", command.FindChildElements},
	{http.MethodPost, "/session/{sessionId}/element/{id}/click", command.ClickElement},
	{http.MethodPost, "/session/{sessionId}/element/{id}/submit", command.SubmitElement},
	{http.MethodPost, "/session/{sessionId}/element/{id}/clear", command.ClearElement},
	{http.MethodPost, "/session/{sessionId}/element/{id}/value", command.SendKeysToElement},
	{http.MethodGet, "/session/{sessionId}/element/{id}/text", command.GetElementText},
	{http.MethodGet, "/session/{sessionId}/element/{id}/name", command.GetElementTagName},
	{http.MethodGet, "/session/{sessionId}/element/{id}/attribute/{name}", command.GetElementAttribute},
	{http.MethodGet, "/session/{sessionId}/element/{id}/selected", command.IsElementSelected},
	{http.MethodGet, "/session/{sessionId}/element/{id}/enabled", command.IsElementEnabled},
	{http.MethodGet, "/session/{sessionId}/element/{id}/displayed", command.IsElementDisplayed},
	{http.MethodGet, "/session/{sessionId}/element/{id}/location", command.GetElementLocation},
	{http.MethodGet, "/session/{sessionId}/element/{id}/size", command.GetElementSize},
	{http.MethodGet, "/session/{sessionId}/element/{id}/css/{propertyName}", command.GetElementCSSValue},
	{http.MethodGet, "/session/{sessionId}/element/{id}/equals/{other}", command.ElementEquals},

	{http.MethodGet, "/session/{sessionId}/cookie", command.GetAllCookies},
	{http.MethodPost, "/session/{sessionId}/cookie", command.AddCookie},
	{http.MethodDelete, "/session/{sessionId}/cookie", command.DeleteAllCookies},
	{http.MethodDelete, "/session/{sessionId}/cookie/{name}", command.DeleteCookie},

	{http.MethodPost, "/session/{sessionId}/frame", command.SwitchToFrame},
	{http.MethodPost, "/session/{sessionId}/frame/parent", command.SwitchToParentFrame},
	{http.MethodPost, "/session/{sessionId}/window", command.SwitchToWindow},
	{http.MethodDelete, "/session/{sessionId}/window", command.CloseWindow},
	{http.MethodGet, "/session/{sessionId}/window_handle", command.GetWindowHandle},
	{http.MethodGet, "/session/{sessionId}/window_handles", command.GetWindowHandles},

	{http.MethodPost, "/session/{sessionId}/execute", command.ExecuteScript},
	{http.MethodPost, "/session/{sessionId}/execute_async", command.ExecuteAsyncScript},

	{http.MethodPost, "/session/{sessionId}/timeouts", command.SetTimeouts},
	{http.MethodPost, "/session/{sessionId}/timeouts/implicit_wait", command.ImplicitlyWait},
	{http.MethodPost, "/session/{sessionId}/timeouts/async_script", command.SetScriptTimeout},
	{http.MethodGet, "/session/{sessionId}/speed", command.GetSpeed},
	{http.MethodPost, "/session/{sessionId}/speed", command.SetSpeed},
}

// Routes returns a copy of the command route table.
func Routes() []Route {
	return append([]Route(nil), routes...)
}
