package browser

import (
	"fmt"
	"strconv"
)

const controlAttr = "data-gs-ctl"

const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
Object.defineProperty(navigator, 'plugins', {
	get: () => {
		const plugins = [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' }
		];
		plugins.length = 3;
		return plugins;
	},
	configurable: true
});
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
if (!window.chrome) { window.chrome = {}; }
if (!window.chrome.runtime) { window.chrome.runtime = { id: undefined, connect: () => {}, sendMessage: () => {} }; }
`

const heightScript = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`

const scrollScript = `(() => {
	window.scrollTo(0, Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight));
	return true;
})()`

// hintsScript collects raw item observations using the three lookup
// strategies; anchor hrefs are filtered against the item pattern in Go.
func hintsScript(sel Selectors) string {
	return fmt.Sprintf(`(() => {
	const out = [];
	const thumb = (el) => {
		const img = el.querySelector('img');
		return img ? (img.currentSrc || img.src || '') : '';
	};
	const link = (el) => {
		const a = el.matches('a[href]') ? el : el.querySelector('a[href]');
		return a ? a.href : '';
	};
	document.querySelectorAll(%[1]s).forEach((el) => {
		out.push({ source: 'component', itemId: el.getAttribute(%[2]s) || '', namespace: el.getAttribute(%[3]s) || '', href: link(el), thumbnail: thumb(el) });
	});
	document.querySelectorAll('a[href]').forEach((a) => {
		out.push({ source: 'anchor', itemId: '', namespace: '', href: a.href, thumbnail: thumb(a) });
	});
	document.querySelectorAll('[' + %[4]s + ']').forEach((el) => {
		out.push({ source: 'data', itemId: el.getAttribute(%[4]s) || '', namespace: '', href: link(el), thumbnail: thumb(el) });
	});
	return out;
})()`,
		strconv.Quote(sel.Component),
		strconv.Quote(sel.ComponentIDAttr),
		strconv.Quote(sel.ComponentNamespaceAttr),
		strconv.Quote(sel.DataAttr),
	)
}

// maxControls caps how many candidates one scan reports.
const maxControls = 300

// controlsScript tags and describes clickable candidates for pagination. Only
// elements inside the viewport band are reported, walking the document from
// the end so footer controls survive the cap on long listings.
func controlsScript(sel Selectors) string {
	return fmt.Sprintf(`(() => {
	const attr = %[1]s;
	const band = %[2]d;
	const limit = %[4]d;
	const vh = window.innerHeight || document.documentElement.clientHeight;
	document.querySelectorAll('[' + attr + ']').forEach((el) => el.removeAttribute(attr));
	const nodes = Array.from(document.querySelectorAll(%[3]s));
	const out = [];
	for (let i = nodes.length - 1; i >= 0 && out.length < limit; i--) {
		const el = nodes[i];
		const text = (el.innerText || el.textContent || '').trim().slice(0, 120);
		const aria = el.getAttribute('aria-label') || '';
		const cls = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');
		if (!text && !aria && !cls) continue;
		const r = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = r.width > 0 && r.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
		if (!visible || r.bottom < -band || r.top > vh + band) continue;
		const id = String(i);
		el.setAttribute(attr, id);
		out.push({
			id: id,
			text: text,
			ariaLabel: aria,
			className: cls,
			disabled: !!el.disabled || el.getAttribute('aria-disabled') === 'true',
			inBand: true
		});
	}
	return out.reverse();
})()`,
		strconv.Quote(controlAttr),
		sel.BandPx,
		strconv.Quote(sel.Controls),
		maxControls,
	)
}

func controlSelector(id string) string {
	return fmt.Sprintf("[%s=%s]", controlAttr, strconv.Quote(id))
}
