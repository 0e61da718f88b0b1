// internal/browser/cookies.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

// Cookies returns the cookies visible to the current page.
func (c *Chrome) Cookies(ctx context.Context) ([]command.Cookie, error) {
	var raw []*network.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make([]command.Cookie, 0, len(raw))
	for _, ck := range raw {
		out = append(out, fromNetworkCookie(ck))
	}
	return out, nil
}

func fromNetworkCookie(ck *network.Cookie) command.Cookie {
	out := command.Cookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Path:     ck.Path,
		Domain:   ck.Domain,
		Secure:   ck.Secure,
		HTTPOnly: ck.HTTPOnly,
	}
	if !ck.Session && ck.Expires > 0 {
		out.Expiry = int64(ck.Expires)
	}
	return out
}

// cookieParam builds the protocol parameters for ck. Cookies without a domain
// are scoped to pageURL.
func cookieParam(ck command.Cookie, pageURL string) *network.CookieParam {
	p := &network.CookieParam{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     ck.Path,
		Secure:   ck.Secure,
		HTTPOnly: ck.HTTPOnly,
	}
	if ck.Domain == "" {
		p.URL = pageURL
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if ck.Expiry > 0 {
		exp := cdp.TimeSinceEpoch(time.Unix(ck.Expiry, 0))
		p.Expires = &exp
	}
	return p
}

// SetCookie stores ck for the current page. The browser silently drops
// cookies it considers invalid for the page, so the result is read back.
func (c *Chrome) SetCookie(ctx context.Context, ck command.Cookie) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var pageURL string
		if err := chromedp.Location(&pageURL).Do(ctx); err != nil {
			return err
		}
		if err := network.SetCookies([]*network.CookieParam{cookieParam(ck, pageURL)}).Do(ctx); err != nil {
			return command.Errorf(command.UnableToSetCookie, "cookie %q rejected: %v", ck.Name, err)
		}
		stored, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, s := range stored {
			if s.Name == ck.Name && s.Value == ck.Value {
				return nil
			}
		}
		return command.Errorf(command.UnableToSetCookie, "cookie %q is not valid for %s", ck.Name, pageURL)
	}))
}

// DeleteCookies removes the named cookie, or all cookies visible to the page
// when name is empty.
func (c *Chrome) DeleteCookies(ctx context.Context, name string) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		stored, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, s := range stored {
			if name != "" && s.Name != name {
				continue
			}
			if err := network.DeleteCookies(s.Name).WithDomain(s.Domain).WithPath(s.Path).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}
