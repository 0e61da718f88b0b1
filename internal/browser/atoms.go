// internal/browser/atoms.go
package browser

// atomsJS installs window.__scalpel in the top document. It keeps a registry
// of DOM nodes handed out as handles. Handles carry a random per-document
// prefix, so a handle from an earlier document never names a node in a later
// one and resolves as stale.
//
// Every atom returns {ok: value} or {err: {status, message}} where status is
// a wire status code.
const atomsJS = `
if (!window.__scalpel) {
  (function () {
    const NO_SUCH_ELEMENT = 7, NO_SUCH_FRAME = 8, STALE = 10, NOT_VISIBLE = 11,
      UNKNOWN = 13, SCRIPT_ERROR = 17, INVALID_SELECTOR = 32;
    const nodes = new Map();
    const ids = new WeakMap();
    let seq = 0;
    const prefix = Array.from(crypto.getRandomValues(new Uint32Array(2)), (n) => n.toString(36)).join('');

    class AtomError extends Error {
      constructor(status, message) { super(message); this.status = status; }
    }
    const fail = (status, message) => { throw new AtomError(status, message); };

    function register(node) {
      let id = ids.get(node);
      if (!id) {
        id = 'h' + prefix + '.' + (++seq);
        ids.set(node, id);
        nodes.set(id, node);
      }
      return id;
    }

    function lookup(id) {
      const node = nodes.get(id);
      if (!node) fail(STALE, 'element ' + id + ' is not in the current document');
      if (!node.isConnected || !node.ownerDocument.defaultView) {
        nodes.delete(id);
        fail(STALE, 'element ' + id + ' is no longer attached to the document');
      }
      return node;
    }

    function frameWindow(path) {
      let win = window;
      if (!path) return win;
      for (const part of path.split('.')) {
        const idx = Number(part);
        if (!Number.isInteger(idx) || idx < 0 || idx >= win.frames.length) {
          fail(NO_SUCH_FRAME, 'no frame at ' + path);
        }
        win = win.frames[idx];
        try { void win.document; } catch (e) { fail(NO_SUCH_FRAME, 'frame ' + path + ' is cross-origin'); }
      }
      return win;
    }

    function frameDocument(path) {
      const doc = frameWindow(path).document;
      if (!doc) fail(NO_SUCH_FRAME, 'frame ' + path + ' has no document');
      return doc;
    }

    function query(doc, root, using, value) {
      const scope = root || doc;
      const all = (sel) => {
        try { return Array.from(scope.querySelectorAll(sel)); }
        catch (e) { fail(INVALID_SELECTOR, String(e.message || e)); }
      };
      const esc = (s) => doc.defaultView.CSS.escape(s);
      switch (using) {
        case 'id': return all('#' + esc(value));
        case 'name': return all('[name="' + esc(value) + '"]');
        case 'class name': return all('.' + esc(value));
        case 'css selector': return all(value);
        case 'tag name': return Array.from(scope.getElementsByTagName(value));
        case 'link text':
          return all('a').filter((a) => (a.innerText || a.textContent || '').trim() === value);
        case 'partial link text':
          return all('a').filter((a) => (a.innerText || a.textContent || '').includes(value));
        case 'xpath': {
          let snap;
          try {
            snap = doc.evaluate(value, scope, null, doc.defaultView.XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
          } catch (e) { fail(INVALID_SELECTOR, String(e.message || e)); }
          const out = [];
          for (let i = 0; i < snap.snapshotLength; i++) {
            const n = snap.snapshotItem(i);
            if (n.nodeType === 1) out.push(n);
          }
          return out;
        }
      }
      fail(INVALID_SELECTOR, 'unsupported locator strategy ' + using);
    }

    function displayed(el) {
      if (!el.isConnected) return false;
      const win = el.ownerDocument.defaultView;
      for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
        const style = win.getComputedStyle(n);
        if (style.display === 'none') return false;
        if (n === el && (style.visibility === 'hidden' || style.visibility === 'collapse')) return false;
        if (style.opacity === '0') return false;
      }
      const r = el.getBoundingClientRect();
      return r.width > 0 && r.height > 0;
    }

    // Offset of el's document inside the top-level viewport.
    function frameOffset(el) {
      let x = 0, y = 0;
      let win = el.ownerDocument.defaultView;
      while (win && win !== window && win.frameElement) {
        const fe = win.frameElement;
        const r = fe.getBoundingClientRect();
        x += r.left + fe.clientLeft;
        y += r.top + fe.clientTop;
        win = win.parent;
      }
      return { x, y };
    }

    function rect(el) {
      const r = el.getBoundingClientRect();
      const win = el.ownerDocument.defaultView;
      return {
        x: Math.round(r.left + win.scrollX), y: Math.round(r.top + win.scrollY),
        width: Math.round(r.width), height: Math.round(r.height),
      };
    }

    function clickPoint(el) {
      el.scrollIntoView({ block: 'center', inline: 'center' });
      if (!displayed(el)) fail(NOT_VISIBLE, 'element is not displayed');
      const r = el.getBoundingClientRect();
      const off = frameOffset(el);
      return { x: off.x + r.left + r.width / 2, y: off.y + r.top + r.height / 2 };
    }

    function attribute(el, name) {
      const v = el.getAttribute(name);
      if (v !== null) return { present: true, value: v };
      if (['value', 'checked', 'selected', 'disabled'].includes(name) && name in el) {
        const p = el[name];
        if (p === false) return { present: false, value: '' };
        return { present: true, value: String(p) };
      }
      return { present: false, value: '' };
    }

    function setValue(el, value) {
      const proto = Object.getPrototypeOf(el);
      const desc = Object.getOwnPropertyDescriptor(proto, 'value');
      if (desc && desc.set) desc.set.call(el, value); else el.value = value;
      el.dispatchEvent(new Event('input', { bubbles: true }));
      el.dispatchEvent(new Event('change', { bubbles: true }));
    }

    function frames() {
      const out = [];
      const walk = (win, path) => {
        let state = 'complete';
        try { state = win.document.readyState; } catch (e) { /* cross-origin */ }
        out.push({ path: path, readyState: state });
        let n = 0;
        try { n = win.frames.length; } catch (e) { n = 0; }
        for (let i = 0; i < n; i++) walk(win.frames[i], path === '' ? String(i) : path + '.' + i);
      };
      walk(window, '');
      return out;
    }

    function resolveFrame(parent, kind, index, name, handle) {
      const win = frameWindow(parent);
      const join = (i) => (parent === '' ? String(i) : parent + '.' + i);
      const n = win.frames.length;
      if (kind === 'index') {
        if (index < 0 || index >= n) fail(NO_SUCH_FRAME, 'no frame at index ' + index);
        return join(index);
      }
      if (kind === 'name') {
        for (let i = 0; i < n; i++) {
          let fe = null;
          try { fe = win.frames[i].frameElement; } catch (e) { fe = null; }
          let frameName = '';
          try { frameName = win.frames[i].name; } catch (e) { frameName = fe ? fe.name : ''; }
          if (frameName === name || (fe && fe.id === name)) return join(i);
        }
        fail(NO_SUCH_FRAME, 'no frame named ' + name);
      }
      const el = lookup(handle);
      for (let i = 0; i < n; i++) {
        if (el.contentWindow === win.frames[i]) return join(i);
      }
      fail(NO_SUCH_FRAME, 'element is not a frame in the current document');
    }

    function isNode(v) {
      return v !== null && typeof v === 'object' && typeof v.nodeType === 'number' && typeof v.nodeName === 'string';
    }

    // serialize converts a script result into JSON, replacing nodes with
    // element markers.
    function serialize(v, seen) {
      if (v === undefined || v === null || typeof v === 'function' || typeof v === 'symbol') return null;
      if (typeof v !== 'object') return v;
      if (isNode(v)) return { __scalpel_element: register(v) };
      seen = seen || new Set();
      if (seen.has(v)) fail(SCRIPT_ERROR, 'cyclic object value');
      seen.add(v);
      let out;
      if (Array.isArray(v) || (typeof v.length === 'number' && typeof v.item === 'function')) {
        out = Array.from(v, (x) => serialize(x, seen));
      } else {
        out = {};
        for (const k of Object.keys(v)) out[k] = serialize(v[k], seen);
      }
      seen.delete(v);
      return out;
    }

    // revive converts script arguments back, resolving element markers.
    function revive(v) {
      if (v === null || typeof v !== 'object') return v;
      if (Array.isArray(v)) return v.map(revive);
      if (typeof v.__scalpel_element === 'string') return lookup(v.__scalpel_element);
      const out = {};
      for (const k of Object.keys(v)) out[k] = revive(v[k]);
      return out;
    }

    const ops = {
      frames: () => frames(),
      resolveFrame: (a) => resolveFrame(a.parent, a.kind, a.index, a.name, a.handle),
      find: (a) => {
        const doc = frameDocument(a.frame);
        const root = a.root ? lookup(a.root) : null;
        return query(doc, root, a.using, a.value).map(register);
      },
      active: (a) => {
        const doc = frameDocument(a.frame);
        return register(doc.activeElement || doc.body || doc.documentElement);
      },
      source: (a) => {
        const doc = frameDocument(a.frame);
        return doc.documentElement ? doc.documentElement.outerHTML : '';
      },
      text: (a) => { const el = lookup(a.handle); return (el.innerText !== undefined ? el.innerText : el.textContent) || ''; },
      tagName: (a) => lookup(a.handle).tagName.toLowerCase(),
      attribute: (a) => attribute(lookup(a.handle), a.name),
      selected: (a) => { const el = lookup(a.handle); return !!(el.selected || el.checked); },
      enabled: (a) => !lookup(a.handle).disabled,
      displayed: (a) => displayed(lookup(a.handle)),
      rect: (a) => rect(lookup(a.handle)),
      css: (a) => { const el = lookup(a.handle); return el.ownerDocument.defaultView.getComputedStyle(el).getPropertyValue(a.name); },
      equal: (a) => lookup(a.handle) === lookup(a.other),
      clickPoint: (a) => clickPoint(lookup(a.handle)),
      focus: (a) => {
        const el = lookup(a.handle);
        el.scrollIntoView({ block: 'center', inline: 'center' });
        if (!displayed(el)) fail(NOT_VISIBLE, 'element is not displayed');
        el.focus();
        if (typeof el.setSelectionRange === 'function' && typeof el.value === 'string') {
          try { el.setSelectionRange(el.value.length, el.value.length); } catch (e) { /* not a text input */ }
        }
        return true;
      },
      clear: (a) => {
        const el = lookup(a.handle);
        if (el.disabled || el.readOnly) fail(UNKNOWN, 'element is not editable');
        if (el.isContentEditable) { el.innerHTML = ''; return true; }
        setValue(el, '');
        return true;
      },
      submit: (a) => {
        const el = lookup(a.handle);
        const form = el.form || el.closest('form');
        if (!form) fail(NO_SUCH_ELEMENT, 'element is not in a form');
        if (typeof form.requestSubmit === 'function') form.requestSubmit(); else form.submit();
        return true;
      },
    };

    window.__scalpel = {
      run(op, args) {
        try {
          return JSON.stringify({ ok: ops[op](args) });
        } catch (e) {
          const status = e instanceof AtomError ? e.status : UNKNOWN;
          return JSON.stringify({ err: { status: status, message: String((e && e.message) || e) } });
        }
      },
      script(frame, body, args, async) {
        const done = (v) => JSON.stringify({ ok: serialize(v) });
        const failed = (e) => {
          const status = e instanceof AtomError ? e.status : SCRIPT_ERROR;
          return JSON.stringify({ err: { status: status, message: String((e && (e.stack || e.message)) || e) } });
        };
        let win, fn, revived;
        try {
          win = frameWindow(frame);
          revived = revive(args);
          fn = new win.Function(body);
        } catch (e) {
          return async ? Promise.resolve(failed(e)) : failed(e);
        }
        if (!async) {
          try { return done(fn.apply(win, revived)); } catch (e) { return failed(e); }
        }
        return new Promise((resolve) => {
          try { fn.apply(win, revived.concat([(v) => resolve(done(v))])); } catch (e) { resolve(failed(e)); }
        });
      },
    };
  })();
}
`
