// Package pagescript holds the in-page JavaScript the core engine
// evaluates against the live document. Per the redesign notes, these
// are fixed resources: callers never build script text by
// concatenating step-supplied values into source — all step data
// travels through the `arguments_` array injected by the CDP session
// adapter (see chromedpsession.wrapArgs) and is read positionally by
// the functions below. Grounded on the reference repo's
// agent/tools/browser.go (refMap design, formatAXNodes) and
// internal/browser/snapshot.go (annotateSnapshot, isInteractiveRole).
package pagescript

// Bundle defines window.__cdpstep exactly once per execution context.
// Every caller wraps a trailing call expression in an IIFE of the form
//
//	(function(){ BUNDLE; return __cdpstep.someFn(arguments_[0]); })()
//
// so the bundle's init guard (`if (window.__cdpstep) return`) makes
// repeated evaluation in the same context cheap and idempotent.
const Bundle = `
if (!window.__cdpstep) {
  (function() {
    const ROLE_SELECTORS = {
      button: 'button, input[type=button], input[type=submit], input[type=reset], [role=button]',
      link: 'a[href], [role=link]',
      textbox: 'input:not([type]), input[type=text], input[type=email], input[type=search], input[type=tel], input[type=url], input[type=password], input[type=number], textarea, [role=textbox], [contenteditable=true], [contenteditable=""]',
      checkbox: 'input[type=checkbox], [role=checkbox]',
      radio: 'input[type=radio], [role=radio]',
      combobox: 'select, [role=combobox]',
      listbox: 'select[multiple], [role=listbox]',
      heading: 'h1, h2, h3, h4, h5, h6, [role=heading]',
      img: 'img, [role=img]',
      list: 'ul, ol, [role=list]',
      listitem: 'li, [role=listitem]',
      table: 'table, [role=table]',
      tab: '[role=tab]',
      dialog: '[role=dialog], dialog',
      menu: '[role=menu]',
      menuitem: '[role=menuitem]',
      navigation: 'nav, [role=navigation]',
      banner: 'header, [role=banner]',
      contentinfo: 'footer, [role=contentinfo]',
      main: 'main, [role=main]',
      form: 'form, [role=form]',
      region: 'section, [role=region]',
      switch: '[role=switch]',
      slider: 'input[type=range], [role=slider]',
      progressbar: 'progress, [role=progressbar]',
      searchbox: 'input[type=search], [role=searchbox]',
      group: 'fieldset, [role=group]',
      article: 'article, [role=article]',
      paragraph: 'p',
      generic: 'div, span',
    };

    const INTERACTIVE_ROLES = new Set([
      'button', 'link', 'textbox', 'checkbox', 'radio', 'combobox',
      'listbox', 'tab', 'menuitem', 'switch', 'slider', 'searchbox',
    ]);

    const TAG_IMPLICIT_ROLE = {
      A: 'link', BUTTON: 'button', INPUT: 'textbox', TEXTAREA: 'textbox',
      SELECT: 'combobox', IMG: 'img', NAV: 'navigation', HEADER: 'banner',
      FOOTER: 'contentinfo', MAIN: 'main', FORM: 'form', UL: 'list',
      OL: 'list', LI: 'listitem', TABLE: 'table', H1: 'heading',
      H2: 'heading', H3: 'heading', H4: 'heading', H5: 'heading',
      H6: 'heading', P: 'paragraph', ARTICLE: 'article', SECTION: 'region',
      PROGRESS: 'progressbar', DIALOG: 'dialog', FIELDSET: 'group',
    };

    function isVisible(el) {
      if (!el || !el.isConnected) return false;
      const style = getComputedStyle(el);
      if (style.display === 'none' || style.visibility === 'hidden') return false;
      if (parseFloat(style.opacity) === 0) return false;
      const rect = el.getBoundingClientRect();
      return rect.width > 0 && rect.height > 0;
    }

    function isAttached(el) {
      return !!(el && el.isConnected);
    }

    function isInDisabledFieldset(el) {
      let p = el.parentElement;
      while (p) {
        if (p.tagName === 'FIELDSET' && p.disabled) {
          if (el.tagName !== 'LEGEND' || el.parentElement !== p) return true;
        }
        p = p.parentElement;
      }
      return false;
    }

    function isEnabled(el) {
      if (!el) return false;
      if (el.disabled) return false;
      if (el.getAttribute && el.getAttribute('aria-disabled') === 'true') return false;
      if (isInDisabledFieldset(el)) return false;
      return true;
    }

    const TEXT_INPUT_TYPES = new Set([
      'text', 'email', 'search', 'tel', 'url', 'password', 'number', '',
    ]);

    function isEditable(el) {
      if (!isEnabled(el)) return false;
      if (el.readOnly) return false;
      if (el.getAttribute && el.getAttribute('aria-readonly') === 'true') return false;
      if (el.tagName === 'TEXTAREA') return true;
      if (el.tagName === 'INPUT') return TEXT_INPUT_TYPES.has((el.type || '').toLowerCase());
      if (el.isContentEditable) return true;
      return false;
    }

    function rectOf(el) {
      if (!el || !el.isConnected) return null;
      const r = el.getBoundingClientRect();
      return { x: r.x, y: r.y, width: r.width, height: r.height };
    }

    function waitFrame() {
      return new Promise(function(resolve) { requestAnimationFrame(function() { resolve(true); }); });
    }

    function clickablePoint(el) {
      const r = el.getBoundingClientRect();
      return { x: r.x + r.width / 2, y: r.y + r.height / 2, rect: { x: r.x, y: r.y, width: r.width, height: r.height } };
    }

    function scrollIntoView(el, block) {
      if (!el) return false;
      el.scrollIntoView({ block: block || 'center', inline: 'nearest', behavior: 'instant' });
      return true;
    }

    function scrollBy(dx, dy) {
      window.scrollBy(dx, dy);
      return true;
    }

    function hittable(el) {
      const p = clickablePoint(el);
      const top = document.elementFromPoint(p.x, p.y);
      if (!top) return { matches: false, received: 'nothing-at-point' };
      if (top === el || el.contains(top) || top.contains(el)) {
        return { matches: true, received: 'self' };
      }
      return { matches: false, received: (top.tagName || 'unknown').toLowerCase() };
    }

    function accessibleName(el) {
      if (!el) return '';
      const labelledby = el.getAttribute && el.getAttribute('aria-labelledby');
      if (labelledby) {
        const parts = labelledby.split(/\s+/).map(function(id) {
          const t = document.getElementById(id);
          return t ? t.textContent.trim() : '';
        }).filter(Boolean);
        if (parts.length) return parts.join(' ').slice(0, 100);
      }
      const label = el.getAttribute && el.getAttribute('aria-label');
      if (label) return label.trim().slice(0, 100);
      if (el.labels && el.labels.length) {
        return Array.from(el.labels).map(function(l) { return l.textContent.trim(); }).join(' ').slice(0, 100);
      }
      if (el.tagName === 'IMG' && el.alt) return el.alt.trim().slice(0, 100);
      if (el.title) return el.title.trim().slice(0, 100);
      if (el.placeholder) return el.placeholder.trim().slice(0, 100);
      return (el.textContent || '').trim().replace(/\s+/g, ' ').slice(0, 100);
    }

    function roleOf(el) {
      const explicit = el.getAttribute && el.getAttribute('role');
      if (explicit) return explicit.split(/\s+/)[0];
      if (el.tagName === 'INPUT') {
        const t = (el.type || 'text').toLowerCase();
        if (t === 'checkbox') return 'checkbox';
        if (t === 'radio') return 'radio';
        if (t === 'range') return 'slider';
        if (t === 'search') return 'searchbox';
        if (t === 'button' || t === 'submit' || t === 'reset') return 'button';
        return 'textbox';
      }
      if (el.tagName === 'SELECT') return el.multiple ? 'listbox' : 'combobox';
      if (el.isContentEditable) return 'textbox';
      return TAG_IMPLICIT_ROLE[el.tagName] || 'generic';
    }

    function queryOne(selector) {
      try { return document.querySelector(selector); }
      catch (e) { throw new Error('invalid selector: ' + selector); }
    }

    function queryAll(selector) {
      try { return Array.from(document.querySelectorAll(selector)); }
      catch (e) { throw new Error('invalid selector: ' + selector); }
    }

    function queryByRole(role, opts) {
      opts = opts || {};
      const sel = ROLE_SELECTORS[role] || ('[role="' + role + '"]');
      let candidates;
      try { candidates = Array.from(document.querySelectorAll(sel)); }
      catch (e) { candidates = []; }
      return candidates.filter(function(el) {
        if (!isVisible(el) && !opts.includeHidden) return false;
        if (opts.name) {
          const name = accessibleName(el).toLowerCase();
          if (name.indexOf(String(opts.name).toLowerCase()) === -1) return false;
        }
        if (opts.checked !== undefined && opts.checked !== null) {
          const checked = !!el.checked || el.getAttribute('aria-checked') === 'true';
          if (checked !== !!opts.checked) return false;
        }
        if (opts.disabled !== undefined && opts.disabled !== null) {
          if (!isEnabled(el) !== !!opts.disabled) return false;
        }
        return true;
      });
    }

    function findByText(text, opts) {
      opts = opts || {};
      const needle = opts.exact ? text : String(text).toLowerCase();
      const within = opts.within ? queryOne(opts.within) : document.body;
      if (!within) return null;
      const groups = opts.tag ? [opts.tag] : [
        ROLE_SELECTORS.button, ROLE_SELECTORS.link, '[role=button]', '*',
      ];
      for (const sel of groups) {
        let nodes;
        try { nodes = Array.from(within.querySelectorAll(sel)); }
        catch (e) { continue; }
        for (const el of nodes) {
          if (!isVisible(el)) continue;
          const t = opts.exact ? el.textContent.trim() : el.textContent.trim().toLowerCase();
          const match = opts.exact ? t === needle : t.indexOf(needle) !== -1;
          if (match) return el;
        }
      }
      return null;
    }

    // --- ref store ---------------------------------------------------
    function ensureRefStore() {
      if (!window.__ariaRefs) window.__ariaRefs = {};
      if (!window.__ariaRefMeta) window.__ariaRefMeta = {};
      if (!window.__ariaSnapshotId) window.__ariaSnapshotId = 0;
    }

    function cssPath(el) {
      if (el.id) return '#' + CSS.escape(el.id);
      const parts = [];
      let node = el;
      while (node && node.nodeType === 1 && parts.length < 8) {
        let seg = node.tagName.toLowerCase();
        if (node.parentElement) {
          const siblings = Array.from(node.parentElement.children).filter(function(c) { return c.tagName === node.tagName; });
          if (siblings.length > 1) seg += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
        }
        parts.unshift(seg);
        node = node.parentElement;
      }
      return parts.join(' > ');
    }

    function shadowHostPath(el) {
      const path = [];
      let root = el.getRootNode();
      while (root && root.host) {
        path.unshift(cssPath(root.host));
        root = root.host.getRootNode();
      }
      return path;
    }

    function assignRef(el, snapshotId, counterBox) {
      ensureRefStore();
      counterBox.n++;
      const ref = 's' + snapshotId + 'e' + counterBox.n;
      window.__ariaRefs[ref] = el;
      if (!window.__ariaRefMeta[ref]) {
        window.__ariaRefMeta[ref] = {
          role: roleOf(el),
          name: accessibleName(el),
          selector: cssPath(el),
          shadowHostPath: shadowHostPath(el),
        };
      }
      return ref;
    }

    function clearRefs() {
      window.__ariaRefs = {};
      window.__ariaRefMeta = {};
    }

    function nextSnapshotId(preserveRefs) {
      ensureRefStore();
      if (preserveRefs && window.__ariaSnapshotId > 0) return window.__ariaSnapshotId;
      window.__ariaSnapshotId++;
      return window.__ariaSnapshotId;
    }

    function isNonSemantic(el) {
      const role = roleOf(el);
      if (role !== 'generic') return false;
      return !el.hasAttribute('role') && !(el.textContent || '').trim() && el.children.length === 0;
    }

    function inViewport(el) {
      const r = el.getBoundingClientRect();
      return r.bottom > 0 && r.right > 0 && r.top < innerHeight && r.left < innerWidth;
    }

    function buildNode(el, opts, snapshotId, counterBox, depth) {
      if (opts.maxDepth && depth > opts.maxDepth) return null;
      if (!isVisible(el) && !opts.includeHidden) return null;
      if (opts.viewportOnly && !inViewport(el)) return null;
      if (isNonSemantic(el) && opts.detail !== 'full') {
        return buildChildren(el, opts, snapshotId, counterBox, depth);
      }
      const role = roleOf(el);
      const node = { role: role, name: accessibleName(el) };
      if (INTERACTIVE_ROLES.has(role) || opts.detail === 'full') {
        node.ref = assignRef(el, snapshotId, counterBox);
      }
      if (el.checked !== undefined) node.checked = !!el.checked;
      if (!isEnabled(el)) node.disabled = true;
      if (el.getAttribute && el.getAttribute('aria-expanded')) node.expanded = el.getAttribute('aria-expanded') === 'true';
      if (el.value !== undefined && (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA')) node.value = el.value;
      if (opts.includeText && el.children.length === 0) {
        const t = (el.textContent || '').trim();
        if (t) node.text = t.slice(0, 200);
      }
      const children = buildChildren(el, opts, snapshotId, counterBox, depth + 1);
      if (children && children.length) node.children = children;
      if (opts.maxElements && counterBox.n >= opts.maxElements) return node;
      return node;
    }

    function buildChildren(el, opts, snapshotId, counterBox, depth) {
      const out = [];
      for (const child of Array.from(el.children)) {
        if (opts.maxElements && counterBox.n >= opts.maxElements) break;
        if (opts.pierceShadow && child.shadowRoot) {
          for (const sc of Array.from(child.shadowRoot.children)) {
            const n = buildNode(sc, opts, snapshotId, counterBox, depth);
            if (n) (Array.isArray(n) ? out.push.apply(out, n) : out.push(n));
          }
        }
        const n = buildNode(child, opts, snapshotId, counterBox, depth);
        if (n) (Array.isArray(n) ? out.push.apply(out, n) : out.push(n));
      }
      return out;
    }

    function pageHash() {
      return document.documentElement.outerHTML.length + ':' + location.href;
    }

    function generateSnapshot(opts) {
      opts = opts || {};
      ensureRefStore();
      if (opts.since && window.__lastPageHash === opts.since) {
        return { unchanged: true, snapshotId: window.__ariaSnapshotId };
      }
      const snapshotId = nextSnapshotId(opts.preserveRefs);
      if (!opts.preserveRefs) {
        for (const k of Object.keys(window.__ariaRefs)) {
          if (!k.startsWith('s' + snapshotId + 'e')) continue;
          delete window.__ariaRefs[k];
          delete window.__ariaRefMeta[k];
        }
      }
      let root = document.body;
      if (opts.root) {
        const found = queryOne(opts.root);
        if (found) root = found;
      }
      const counterBox = { n: 0 };
      const tree = buildNode(root, opts, snapshotId, counterBox, 0);
      window.__lastPageHash = pageHash();
      const refs = {};
      for (const k of Object.keys(window.__ariaRefMeta)) {
        if (k.startsWith('s' + snapshotId + 'e')) {
          refs[k] = { role: window.__ariaRefMeta[k].role, name: window.__ariaRefMeta[k].name };
        }
      }
      return { snapshotId: snapshotId, tree: tree ? [tree] : [], refs: refs };
    }

    // --- ref resolution -----------------------------------------------
    function resolveFast(ref) {
      ensureRefStore();
      const el = window.__ariaRefs[ref];
      if (el && el.isConnected) return { found: true, reResolved: false };
      return { found: false, existed: !!el };
    }

    function resolveBySelector(ref) {
      ensureRefStore();
      const meta = window.__ariaRefMeta[ref];
      if (!meta) return { found: false };
      let scope = document;
      for (const hostSel of meta.shadowHostPath) {
        const host = queryOne(hostSel);
        if (!host || !host.shadowRoot) return { found: false };
        scope = host.shadowRoot;
      }
      let candidate;
      try { candidate = scope.querySelector(meta.selector); } catch (e) { candidate = null; }
      if (!candidate) return { found: false };
      if (roleOf(candidate) !== meta.role) return { found: false };
      if (accessibleName(candidate).toLowerCase().indexOf(meta.name.toLowerCase().slice(0, 100)) === -1 &&
          meta.name.toLowerCase().indexOf(accessibleName(candidate).toLowerCase()) === -1) {
        return { found: false };
      }
      window.__ariaRefs[ref] = candidate;
      return { found: true, reResolved: true };
    }

    function resolveByRoleSearch(ref) {
      ensureRefStore();
      const meta = window.__ariaRefMeta[ref];
      if (!meta) return { found: false };
      const sel = ROLE_SELECTORS[meta.role] || ('[role="' + meta.role + '"]');
      const scopes = [];
      let cur = document;
      for (const hostSel of meta.shadowHostPath) {
        const host = queryOne(hostSel);
        if (host && host.shadowRoot) { scopes.push(host.shadowRoot); cur = host.shadowRoot; }
      }
      scopes.push(document);
      const seen = new Set();
      document.querySelectorAll('*').forEach(function(el) {
        if (el.shadowRoot) scopes.push(el.shadowRoot);
      });
      for (const scope of scopes) {
        if (seen.has(scope)) continue;
        seen.add(scope);
        let candidates;
        try { candidates = Array.from(scope.querySelectorAll(sel)); } catch (e) { continue; }
        for (const el of candidates) {
          if (roleOf(el) !== meta.role) continue;
          const name = accessibleName(el).toLowerCase();
          if (name.indexOf(meta.name.toLowerCase().slice(0, 100)) === -1) continue;
          window.__ariaRefs[ref] = el;
          return { found: true, reResolved: true };
        }
      }
      return { found: false };
    }

    function waitForSelector(selector, timeoutMs, requireVisible) {
      return new Promise(function(resolve) {
        const immediate = queryOne(selector);
        if (immediate && (!requireVisible || isVisible(immediate))) { resolve(immediate); return; }
        let done = false;
        const finish = function(el) {
          if (done) return;
          done = true;
          obs.disconnect();
          clearTimeout(timer);
          resolve(el || null);
        };
        const obs = new MutationObserver(function() {
          const el = queryOne(selector);
          if (el && (!requireVisible || isVisible(el))) finish(el);
        });
        obs.observe(document.documentElement, { childList: true, subtree: true, attributes: true });
        const timer = setTimeout(function() { finish(null); }, timeoutMs);
        (function poll() {
          if (done) return;
          const el = queryOne(selector);
          if (el && (!requireVisible || isVisible(el))) { finish(el); return; }
          setTimeout(poll, 100);
        })();
      });
    }

    function waitForText(text, timeoutMs, caseSensitive) {
      return new Promise(function(resolve) {
        const check = function() {
          const hay = caseSensitive ? document.body.innerText : document.body.innerText.toLowerCase();
          const needle = caseSensitive ? text : String(text).toLowerCase();
          return hay.indexOf(needle) !== -1;
        };
        if (check()) { resolve(true); return; }
        let done = false;
        const finish = function(ok) {
          if (done) return;
          done = true;
          obs.disconnect();
          clearTimeout(timer);
          resolve(ok);
        };
        const obs = new MutationObserver(function() { if (check()) finish(true); });
        obs.observe(document.documentElement, { childList: true, subtree: true, characterData: true });
        const timer = setTimeout(function() { finish(false); }, timeoutMs);
      });
    }

    window.__cdpstep = {
      isVisible: isVisible, isAttached: isAttached, isEnabled: isEnabled,
      isEditable: isEditable, rectOf: rectOf, waitFrame: waitFrame, hittable: hittable,
      scrollIntoView: scrollIntoView, scrollBy: scrollBy,
      clickablePoint: clickablePoint, accessibleName: accessibleName,
      roleOf: roleOf, queryOne: queryOne, queryAll: queryAll,
      queryByRole: queryByRole, findByText: findByText,
      waitForSelector: waitForSelector, waitForText: waitForText,
      ensureRefStore: ensureRefStore, assignRef: assignRef, clearRefs: clearRefs,
      generateSnapshot: generateSnapshot, resolveFast: resolveFast,
      resolveBySelector: resolveBySelector, resolveByRoleSearch: resolveByRoleSearch,
      ROLE_SELECTORS: ROLE_SELECTORS,
    };
  })();
}
`
