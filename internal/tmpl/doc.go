// Package tmpl implements the small template language FreeMember pages are
// written in.
//
// A page is HTML containing tags of the form
//
//	{exp:freemember:login return="account" form_id="login"}
//	    {field:email} {if error:email}{error:email}{/if}
//	{/exp:freemember:login}
//
// Scan and Render locate tags and hand them to a dispatcher. The markup
// between an opening and a closing tag is the tag's Data; the dispatcher
// typically feeds it to ParseVariables together with one or more rows of
// variables. Variables are written {name}; conditionals are written
// {if name}...{if:else}...{/if} and may be nested. A {if no_results} block is
// only emitted through NoResults.
package tmpl
