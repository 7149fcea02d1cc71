package browser

import "github.com/polzovatel/form-autofill-agent/internal/dom"

const mutationBinding = "__autofillMutation"

// captureScript clones the document and folds state that only lives in DOM
// properties into attributes on the clone, so the live page is untouched.
const captureScript = `() => {
	const root = document.documentElement;
	const clone = root.cloneNode(true);
	const live = [root, ...root.querySelectorAll('*')];
	const copy = [clone, ...clone.querySelectorAll('*')];
	for (let i = 0; i < live.length && i < copy.length; i++) {
		const el = live[i], out = copy[i];
		const style = window.getComputedStyle(el);
		if (style && (style.display === 'none' || style.visibility === 'hidden')) {
			out.setAttribute('` + dom.HiddenMarker + `', '');
		}
		const tag = el.tagName;
		if (tag === 'INPUT') {
			const type = (el.type || '').toLowerCase();
			if (type === 'checkbox' || type === 'radio') {
				if (el.checked) out.setAttribute('checked', ''); else out.removeAttribute('checked');
			} else if (type !== 'file' && type !== 'password') {
				out.setAttribute('value', el.value);
			}
		} else if (tag === 'TEXTAREA') {
			out.textContent = el.value;
		} else if (tag === 'OPTION') {
			if (el.selected) out.setAttribute('selected', ''); else out.removeAttribute('selected');
		} else if (tag === 'SCRIPT' || tag === 'STYLE') {
			out.textContent = '';
		}
	}
	return '<!DOCTYPE html>' + clone.outerHTML;
}`

// setValueOp goes through the prototype setter so framework-controlled
// inputs observe the change.
const setValueOp = `
	const proto = Object.getPrototypeOf(el);
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) desc.set.call(el, arg); else el.value = arg;
`

const setFilesOp = `
	const dt = new DataTransfer();
	for (const f of arg) {
		const bin = atob(f.data);
		const bytes = new Uint8Array(bin.length);
		for (let i = 0; i < bin.length; i++) bytes[i] = bin.charCodeAt(i);
		dt.items.add(new File([bytes], f.name, {type: f.type, lastModified: f.lastModified}));
	}
	el.files = dt.files;
`

const dispatchOp = `
	let ev;
	if (arg.type === 'focus' || arg.type === 'blur') {
		ev = new FocusEvent(arg.type, {bubbles: arg.bubbles});
	} else if (arg.type.startsWith('key')) {
		ev = new KeyboardEvent(arg.type, {bubbles: arg.bubbles});
	} else {
		ev = new Event(arg.type, {bubbles: arg.bubbles});
	}
	el.dispatchEvent(ev);
`

// observerScript reports added nodes that are not agent UI. It is installed
// as an init script so it survives navigations.
const observerScript = `(() => {
	if (window.__autofillObserver) return;
	const start = () => {
		const obs = new MutationObserver((records) => {
			for (const r of records) {
				for (const n of r.addedNodes) {
					if (n.nodeType !== 1) continue;
					if (n.hasAttribute('` + dom.UIMarker + `') || n.closest('[` + dom.UIMarker + `]')) continue;
					if (typeof window.` + mutationBinding + ` === 'function') window.` + mutationBinding + `();
					return;
				}
			}
		});
		obs.observe(document.documentElement, {childList: true, subtree: true});
		window.__autofillObserver = obs;
	};
	if (document.documentElement) start();
	else document.addEventListener('DOMContentLoaded', start);
})()`

// quietScript resolves after 300ms without mutations, or after 3s.
const quietScript = `() => new Promise((resolve) => {
	let timer = setTimeout(done, 300);
	const obs = new MutationObserver(() => {
		clearTimeout(timer);
		timer = setTimeout(done, 300);
	});
	const cap = setTimeout(done, 3000);
	function done() {
		obs.disconnect();
		clearTimeout(cap);
		resolve(true);
	}
	obs.observe(document.documentElement, {childList: true, subtree: true, attributes: true});
})`
